// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the turn request type accepted by the streaming chat
// endpoint and the wire-level message type shared with the LLM backends.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single user message.
	// Unbounded message input mitigation.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxIdentifierLength bounds tenant and conversation identifiers.
	MaxIdentifierLength = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the byte-length cap on message content.
// Checks byte length (not rune count) to prevent memory exhaustion with
// large multi-byte payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Turn Request
// =============================================================================

// TurnRequest is the body of a streaming turn request.
//
// # Description
//
// TurnRequest carries one user message plus the session identity that
// scopes history and retrieval. It is the only input the orchestration
// core accepts; conversation history is loaded server-side from the
// history store, never trusted from the client.
//
// # Fields
//
//   - RequestID: Optional UUID v4 for tracing; generated if absent.
//   - Timestamp: Optional Unix milliseconds (UTC); generated if absent.
//   - Tenant: Required tenant identifier.
//   - Conversation: Required conversation identifier.
//   - Message: Required user message, max 32KB.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: uuid4 when present
//   - Tenant, Conversation: required, max 128 chars
//   - Message: required, maxbytes custom validator (32KB)
//
// # Examples
//
//	req := TurnRequest{
//	    Tenant:       "acme",
//	    Conversation: "conv-42",
//	    Message:      "What is OAuth?",
//	}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
type TurnRequest struct {
	RequestID    string `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp    int64  `json:"timestamp" validate:"gte=0"`
	Tenant       string `json:"tenant" validate:"required,max=128"`
	Conversation string `json:"conversation_id" validate:"required,max=128"`
	Message      string `json:"message" validate:"required,maxbytes"`
}

// Validate validates the TurnRequest fields after JSON binding.
func (r *TurnRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when the client did
// not provide them, so every turn is traceable.
func (r *TurnRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// Session extracts the composite session key from the request.
func (r *TurnRequest) Session() Session {
	return Session{Tenant: r.Tenant, Conversation: r.Conversation}
}

// =============================================================================
// LLM Wire Message
// =============================================================================

// Message is one chat message in the wire format the LLM backends accept.
// Roles here follow the OpenAI-style convention ("system", "user",
// "assistant"), distinct from the history store's Role type.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
