// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
)

// parseSSEEvents extracts all data payloads from a recorded SSE body.
func parseSSEEvents(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event datatypes.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("Failed to parse event %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

// nonFlushingWriter hides the recorder's Flusher behind the plain
// ResponseWriter interface.
type nonFlushingWriter struct {
	http.ResponseWriter
}

func newNonFlushingWriter() http.ResponseWriter {
	return nonFlushingWriter{ResponseWriter: httptest.NewRecorder()}
}

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	t.Parallel()

	if _, err := NewSSEWriter(httptest.NewRecorder()); err != nil {
		t.Fatalf("Expected recorder to support flushing, got: %v", err)
	}

	if _, err := NewSSEWriter(newNonFlushingWriter()); err == nil {
		t.Error("Expected error for writer without http.Flusher")
	}
}

func TestSSEWriter_EventFormat(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	if err := writer.WriteToken("Hello"); err != nil {
		t.Fatalf("WriteToken failed: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: token\n") {
		t.Errorf("Expected event: token prefix, got: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("Expected double newline terminator, got: %q", body)
	}

	events := parseSSEEvents(t, body)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Type != "token" {
		t.Errorf("Type: got %q, want %q", event.Type, "token")
	}
	if event.Content != "Hello" {
		t.Errorf("Content: got %q, want %q", event.Content, "Hello")
	}
	if event.Id == "" {
		t.Error("Expected populated Id")
	}
	if event.CreatedAt == 0 {
		t.Error("Expected populated CreatedAt")
	}
	if event.Hash == "" {
		t.Error("Expected populated Hash")
	}
}

func TestSSEWriter_HashChain(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	if err := writer.WriteStatus("starting"); err != nil {
		t.Fatalf("WriteStatus failed: %v", err)
	}
	if err := writer.WriteToken("one"); err != nil {
		t.Fatalf("WriteToken failed: %v", err)
	}
	if err := writer.WriteToken("two"); err != nil {
		t.Fatalf("WriteToken failed: %v", err)
	}

	events := parseSSEEvents(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	if events[0].PrevHash != "" {
		t.Errorf("First event PrevHash should be empty, got %q", events[0].PrevHash)
	}
	for i := 1; i < len(events); i++ {
		if events[i].PrevHash != events[i-1].Hash {
			t.Errorf("Event %d PrevHash %q does not match previous Hash %q",
				i, events[i].PrevHash, events[i-1].Hash)
		}
	}
}

func TestSSEWriter_KeepAliveDoesNotBreakChain(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	if err := writer.WriteToken("before"); err != nil {
		t.Fatalf("WriteToken failed: %v", err)
	}
	if err := writer.WriteKeepAlive(); err != nil {
		t.Fatalf("WriteKeepAlive failed: %v", err)
	}
	if err := writer.WriteToken("after"); err != nil {
		t.Fatalf("WriteToken failed: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("Expected keepalive comment in body, got: %q", body)
	}

	events := parseSSEEvents(t, body)
	if len(events) != 2 {
		t.Fatalf("Expected 2 data events, got %d", len(events))
	}
	if events[1].PrevHash != events[0].Hash {
		t.Error("Keepalive must not break the hash chain")
	}
}

func TestSSEWriter_WriteDone(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	session := datatypes.Session{Tenant: "acme", Conversation: "conv-42"}
	if err := writer.WriteDone(session); err != nil {
		t.Fatalf("WriteDone failed: %v", err)
	}

	events := parseSSEEvents(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Type != "done" {
		t.Errorf("Type: got %q, want %q", events[0].Type, "done")
	}
	if events[0].Tenant != "acme" {
		t.Errorf("Tenant: got %q, want %q", events[0].Tenant, "acme")
	}
	if events[0].ConversationId != "conv-42" {
		t.Errorf("ConversationId: got %q, want %q", events[0].ConversationId, "conv-42")
	}
}

func TestSSEWriter_WriteSources(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	sources := []datatypes.SourceInfo{
		{Source: "handbook.md", Score: 0.92},
		{Source: "faq.md", Score: 0.81},
	}
	if err := writer.WriteSources(sources); err != nil {
		t.Fatalf("WriteSources failed: %v", err)
	}

	events := parseSSEEvents(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if len(events[0].Sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(events[0].Sources))
	}
	if events[0].Sources[0].Source != "handbook.md" {
		t.Errorf("Source: got %q, want %q", events[0].Sources[0].Source, "handbook.md")
	}
}

func TestSetSSEHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)

	want := map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s: got %q, want %q", header, got, value)
		}
	}
}
