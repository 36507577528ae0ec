// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/driftline/driftline/services/llm"
	"github.com/driftline/driftline/services/orchestrator/datatypes"
	"github.com/driftline/driftline/services/orchestrator/handlers"
	"github.com/driftline/driftline/services/orchestrator/history"
	"github.com/driftline/driftline/services/orchestrator/lifecycle"
	"github.com/driftline/driftline/services/orchestrator/pipeline"
	"github.com/driftline/driftline/services/orchestrator/prompts"
	"github.com/driftline/driftline/services/orchestrator/retrieval"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockLLMClient is a minimal mock for llm.LLMClient
type mockLLMClient struct{}

func (m *mockLLMClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return "mock response", nil
}

func (m *mockLLMClient) Chat(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams) (string, error) {
	return "mock chat response", nil
}

func (m *mockLLMClient) ChatStream(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams, callback llm.StreamCallback) error {
	_ = callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: "mock stream"})
	return nil
}

// emptySearcher never finds anything.
type emptySearcher struct{}

func (emptySearcher) Search(_ context.Context, _ datatypes.Session, _ string, _ int) ([]retrieval.Chunk, error) {
	return nil, nil
}

func newTestTurnHandler() handlers.TurnStreamHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := history.NewMemoryStore()
	client := &mockLLMClient{}
	searcher := emptySearcher{}
	gate := retrieval.NewGate(searcher, logger)
	registry := prompts.NewRegistry()
	p := pipeline.New(client, gate, searcher, store, registry, pipeline.Config{}, logger)
	controller := lifecycle.NewController(store, client, p, registry, lifecycle.Config{}, logger)
	return handlers.NewTurnStreamHandler(controller)
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, nil, history.NewMemoryStore(), newTestTurnHandler())

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/turns/stream"},
		{"GET", "/v1/sessions"},
		{"GET", "/v1/sessions/:tenant/:conversation/history"},
		{"DELETE", "/v1/sessions/:tenant/:conversation"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", expected.method, expected.path)
		}
	}
}

func TestSetupRoutes_SessionAdminDegradesWithoutBackend(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, nil, history.NewMemoryStore(), newTestTurnHandler())

	cases := []struct {
		method string
		path   string
	}{
		{"GET", "/v1/sessions"},
		{"DELETE", "/v1/sessions/acme/conv-1"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(tc.method, tc.path, nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s without a backend: got %d, want %d",
				tc.method, tc.path, w.Code, http.StatusServiceUnavailable)
		}
	}

	// The in-memory transcript endpoint stays functional.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/sessions/acme/conv-1/history", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("history endpoint without a backend: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSetupRoutes_HealthEndpoint(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, nil, history.NewMemoryStore(), newTestTurnHandler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health status: got %d, want %d", w.Code, http.StatusOK)
	}
}
