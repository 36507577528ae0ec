// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// TurnRequest Validation Tests
// =============================================================================

func TestTurnRequest_Validate_Success(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		Timestamp:    time.Now().UnixMilli(),
		Tenant:       "acme",
		Conversation: "conv-42",
		Message:      "What is the refund policy?",
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestTurnRequest_Validate_MissingTenant(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		Timestamp:    time.Now().UnixMilli(),
		Conversation: "conv-42",
		Message:      "Hello",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing tenant, got nil")
	}
}

func TestTurnRequest_Validate_MissingConversation(t *testing.T) {
	req := &TurnRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: time.Now().UnixMilli(),
		Tenant:    "acme",
		Message:   "Hello",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing conversation, got nil")
	}
}

func TestTurnRequest_Validate_EmptyMessage(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		Timestamp:    time.Now().UnixMilli(),
		Tenant:       "acme",
		Conversation: "conv-42",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for empty message, got nil")
	}
}

func TestTurnRequest_Validate_InvalidRequestID(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "not-a-uuid",
		Timestamp:    time.Now().UnixMilli(),
		Tenant:       "acme",
		Conversation: "conv-42",
		Message:      "Hello",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for invalid request_id, got nil")
	}
}

func TestTurnRequest_Validate_MessageTooLarge(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		Timestamp:    time.Now().UnixMilli(),
		Tenant:       "acme",
		Conversation: "conv-42",
		Message:      strings.Repeat("a", MaxMessageContentBytes+1),
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for oversized message, got nil")
	}
}

func TestTurnRequest_Validate_MessageAtLimit(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		Timestamp:    time.Now().UnixMilli(),
		Tenant:       "acme",
		Conversation: "conv-42",
		Message:      strings.Repeat("a", MaxMessageContentBytes),
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected message at limit to validate, got error: %v", err)
	}
}

func TestTurnRequest_Validate_TenantTooLong(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		Timestamp:    time.Now().UnixMilli(),
		Tenant:       strings.Repeat("t", MaxIdentifierLength+1),
		Conversation: "conv-42",
		Message:      "Hello",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for oversized tenant, got nil")
	}
}

// =============================================================================
// TurnRequest EnsureDefaults Tests
// =============================================================================

func TestTurnRequest_EnsureDefaults_FillsMissing(t *testing.T) {
	req := &TurnRequest{
		Tenant:       "acme",
		Conversation: "conv-42",
		Message:      "Hello",
	}

	req.EnsureDefaults()

	if req.RequestID == "" {
		t.Error("expected request_id to be generated")
	}
	if req.Timestamp == 0 {
		t.Error("expected timestamp to be generated")
	}
	if err := req.Validate(); err != nil {
		t.Errorf("expected defaulted request to validate, got error: %v", err)
	}
}

func TestTurnRequest_EnsureDefaults_PreservesExisting(t *testing.T) {
	req := &TurnRequest{
		RequestID:    "550e8400-e29b-41d4-a716-446655440000",
		Timestamp:    1700000000000,
		Tenant:       "acme",
		Conversation: "conv-42",
		Message:      "Hello",
	}

	req.EnsureDefaults()

	if req.RequestID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("expected request_id preserved, got %s", req.RequestID)
	}
	if req.Timestamp != 1700000000000 {
		t.Errorf("expected timestamp preserved, got %d", req.Timestamp)
	}
}

// =============================================================================
// Session Tests
// =============================================================================

func TestTurnRequest_Session(t *testing.T) {
	req := &TurnRequest{Tenant: "acme", Conversation: "conv-42"}
	session := req.Session()

	if session.Tenant != "acme" || session.Conversation != "conv-42" {
		t.Errorf("unexpected session: %+v", session)
	}
	if session.String() != "acme/conv-42" {
		t.Errorf("expected acme/conv-42, got %s", session.String())
	}
}

func TestSession_IsZero(t *testing.T) {
	if !(Session{}).IsZero() {
		t.Error("expected empty session to be zero")
	}
	if (Session{Tenant: "acme", Conversation: "c"}).IsZero() {
		t.Error("expected populated session to be non-zero")
	}
}
