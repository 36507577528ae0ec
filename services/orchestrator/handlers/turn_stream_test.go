// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/driftline/driftline/services/llm"
	"github.com/driftline/driftline/services/orchestrator/datatypes"
	"github.com/driftline/driftline/services/orchestrator/history"
	"github.com/driftline/driftline/services/orchestrator/lifecycle"
	"github.com/driftline/driftline/services/orchestrator/pipeline"
	"github.com/driftline/driftline/services/orchestrator/prompts"
	"github.com/driftline/driftline/services/orchestrator/retrieval"
)

// =============================================================================
// Test Doubles
// =============================================================================

// streamLLM returns a fixed token sequence for streams and a fixed text for
// blocking calls (contextualize, summarize).
type streamLLM struct {
	tokens       []string
	generateText string
}

var _ llm.LLMClient = (*streamLLM)(nil)

func (s *streamLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return s.generateText, nil
}

func (s *streamLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	return s.generateText, nil
}

func (s *streamLLM) ChatStream(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams, callback llm.StreamCallback) error {
	for _, token := range s.tokens {
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: token}); err != nil {
			return err
		}
	}
	return nil
}

// fixedSearcher returns the same chunks for every query.
type fixedSearcher struct {
	chunks []retrieval.Chunk
}

func (s *fixedSearcher) Search(ctx context.Context, session datatypes.Session,
	query string, limit int) ([]retrieval.Chunk, error) {
	return s.chunks, nil
}

// newTestRouter wires a full turn stack over the in-memory store.
func newTestRouter(t *testing.T, tokens []string, chunks []retrieval.Chunk) (*gin.Engine, *history.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := history.NewMemoryStore()
	client := &streamLLM{tokens: tokens, generateText: "A short summary"}
	searcher := &fixedSearcher{chunks: chunks}
	gate := retrieval.NewGate(searcher, logger)
	registry := prompts.NewRegistry()

	p := pipeline.New(client, gate, searcher, store, registry,
		pipeline.Config{Provider: "test", Model: "test-model"}, logger)
	controller := lifecycle.NewController(store, client, p, registry,
		lifecycle.Config{}, logger)

	router := gin.New()
	handler := NewTurnStreamHandler(controller)
	router.POST("/v1/turns/stream", handler.HandleTurnStream)
	router.GET("/v1/sessions/:tenant/:conversation/history", GetSessionHistory(store))
	return router, store
}

func postTurn(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/turns/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Streaming Turn Tests
// =============================================================================

func TestHandleTurnStream_DirectTurn(t *testing.T) {
	router, store := newTestRouter(t, []string{"Hello", " world"}, nil)

	rec := postTurn(t, router,
		`{"tenant":"acme","conversation_id":"conv-1","message":"Hi there"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: got %q, want %q", ct, "text/event-stream")
	}

	events := parseSSEEvents(t, rec.Body.String())
	if len(events) < 4 {
		t.Fatalf("Expected at least 4 events (status, 2 tokens, done), got %d", len(events))
	}
	if events[0].Type != "status" {
		t.Errorf("First event: got %q, want %q", events[0].Type, "status")
	}

	var answer string
	for _, event := range events {
		if event.Type == "token" {
			answer += event.Content
		}
	}
	if answer != "Hello world" {
		t.Errorf("Streamed answer: got %q, want %q", answer, "Hello world")
	}

	last := events[len(events)-1]
	if last.Type != "done" {
		t.Errorf("Last event: got %q, want %q", last.Type, "done")
	}
	if last.Tenant != "acme" || last.ConversationId != "conv-1" {
		t.Errorf("Done event identity: got %s/%s, want acme/conv-1",
			last.Tenant, last.ConversationId)
	}

	// The turn must be fully persisted: seed, question, answer.
	session := datatypes.Session{Tenant: "acme", Conversation: "conv-1"}
	messages, err := store.Messages(context.Background(), session)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 persisted messages, got %d", len(messages))
	}
	wantRoles := []datatypes.Role{datatypes.RoleSystem, datatypes.RoleHuman, datatypes.RoleAssistant}
	for i, want := range wantRoles {
		if messages[i].Role != want {
			t.Errorf("Message %d role: got %q, want %q", i, messages[i].Role, want)
		}
	}
	if messages[2].Content != "Hello world" {
		t.Errorf("Persisted answer: got %q, want %q", messages[2].Content, "Hello world")
	}
}

func TestHandleTurnStream_GroundedTurnEmitsSources(t *testing.T) {
	chunks := []retrieval.Chunk{
		{Content: "OAuth is an authorization protocol.", Source: "handbook.md", Certainty: 0.9},
	}
	router, _ := newTestRouter(t, []string{"Grounded answer"}, chunks)

	rec := postTurn(t, router,
		`{"tenant":"acme","conversation_id":"conv-2","message":"What is OAuth?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d", rec.Code, http.StatusOK)
	}

	events := parseSSEEvents(t, rec.Body.String())
	var sourcesEvent *datatypes.StreamEvent
	for i := range events {
		if events[i].Type == "sources" {
			sourcesEvent = &events[i]
		}
	}
	if sourcesEvent == nil {
		t.Fatal("Expected a sources event for a grounded turn")
	}
	if len(sourcesEvent.Sources) != 1 || sourcesEvent.Sources[0].Source != "handbook.md" {
		t.Errorf("Sources: got %+v, want handbook.md", sourcesEvent.Sources)
	}
}

func TestHandleTurnStream_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	rec := postTurn(t, router, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "invalid request body") {
		t.Errorf("Expected invalid request body error, got: %s", rec.Body.String())
	}
}

func TestHandleTurnStream_ValidationFailure(t *testing.T) {
	router, store := newTestRouter(t, []string{"x"}, nil)

	// Missing tenant and conversation.
	rec := postTurn(t, router, `{"message":"Hi"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// Nothing may be persisted for a rejected request.
	session := datatypes.Session{Tenant: "", Conversation: ""}
	messages, err := store.Messages(context.Background(), session)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected no persisted messages, got %d", len(messages))
	}
}

// =============================================================================
// Session History Handler Tests
// =============================================================================

func TestGetSessionHistory(t *testing.T) {
	router, store := newTestRouter(t, nil, nil)

	session := datatypes.Session{Tenant: "acme", Conversation: "conv-3"}
	ctx := context.Background()
	if _, err := history.AppendSystem(ctx, store, session, "seed"); err != nil {
		t.Fatalf("AppendSystem failed: %v", err)
	}
	if _, err := history.AppendHuman(ctx, store, session, "question"); err != nil {
		t.Fatalf("AppendHuman failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/acme/conv-3/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status: got %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"question"`) {
		t.Errorf("Expected transcript content in response, got: %s", body)
	}
	if !strings.Contains(body, `"conversation_id":"conv-3"`) {
		t.Errorf("Expected conversation identity in response, got: %s", body)
	}
}

func TestSanitizeTurnError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		err      error
		wantMsg  string
		wantCode string
	}{
		{
			name:     "history unavailable",
			err:      &history.UnavailableError{Op: "append", Err: io.ErrUnexpectedEOF},
			wantMsg:  "conversation history unavailable",
			wantCode: "history_error",
		},
		{
			name:     "generation failure",
			err:      &pipeline.GenerationError{Stage: "stream", Err: io.ErrUnexpectedEOF},
			wantMsg:  "generation failed",
			wantCode: "llm_error",
		},
		{
			name:     "abandonment",
			err:      &pipeline.AbandonedError{Err: io.ErrClosedPipe},
			wantMsg:  "",
			wantCode: "client_disconnect",
		},
		{
			name:     "unknown error",
			err:      io.ErrUnexpectedEOF,
			wantMsg:  "internal error",
			wantCode: "internal",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, code := sanitizeTurnError(tc.err)
			if msg != tc.wantMsg {
				t.Errorf("Message: got %q, want %q", msg, tc.wantMsg)
			}
			if string(code) != tc.wantCode {
				t.Errorf("Code: got %q, want %q", code, tc.wantCode)
			}
		})
	}
}
