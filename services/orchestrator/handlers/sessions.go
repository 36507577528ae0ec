// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
	"github.com/driftline/driftline/services/orchestrator/history"
)

// ListSessions returns a handler for GET /v1/sessions. It lists every
// session with its current summary. Without a Weaviate backend the handler
// answers 503; the streaming turn path keeps working in that mode.
func ListSessions(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "session administration requires a Weaviate backend"})
			return
		}
		slog.Info("Received request to list sessions")
		fields := []graphql.Field{
			{Name: "tenant"},
			{Name: "conversation_id"},
			{Name: "summary"},
			{Name: "timestamp"},
		}
		result, err := client.GraphQL().Get().
			WithClassName(datatypes.ClassSession).
			WithFields(fields...).
			Do(c.Request.Context())
		if err != nil {
			slog.Error("failed to query Weaviate for sessions", "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to query sessions"})
			return
		}
		c.JSON(http.StatusOK, result.Data)
	}
}

// GetSessionHistory returns a handler for
// GET /v1/sessions/:tenant/:conversation/history. It returns the full
// transcript in append order.
func GetSessionHistory(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := datatypes.Session{
			Tenant:       c.Param("tenant"),
			Conversation: c.Param("conversation"),
		}
		if session.IsZero() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant and conversation are required"})
			return
		}

		messages, err := store.Messages(c.Request.Context(), session)
		if err != nil {
			slog.Error("failed to load session history",
				"session", session.String(), "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to load session history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"tenant":          session.Tenant,
			"conversation_id": session.Conversation,
			"messages":        messages,
		})
	}
}

// DeleteSession returns a handler for
// DELETE /v1/sessions/:tenant/:conversation. It removes the transcript and
// the session summary object.
func DeleteSession(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "session administration requires a Weaviate backend"})
			return
		}
		session := datatypes.Session{
			Tenant:       c.Param("tenant"),
			Conversation: c.Param("conversation"),
		}
		if session.IsZero() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant and conversation are required"})
			return
		}
		slog.Info("Received a request to delete a session", "session", session.String())

		whereFilter := filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().
					WithPath([]string{"tenant"}).
					WithOperator(filters.Equal).
					WithValueString(session.Tenant),
				filters.Where().
					WithPath([]string{"conversation_id"}).
					WithOperator(filters.Equal).
					WithValueString(session.Conversation),
			})

		// 1. Delete the transcript.
		response, err := client.Batch().ObjectsBatchDeleter().
			WithClassName(datatypes.ClassTurnMessage).
			WithOutput("minimal").
			WithWhere(whereFilter).
			Do(c.Request.Context())
		if err != nil {
			slog.Error("failed to delete transcript messages", "error", err)
		}

		// 2. Delete the Session object itself.
		_, err = client.Batch().ObjectsBatchDeleter().
			WithClassName(datatypes.ClassSession).
			WithOutput("minimal").
			WithWhere(whereFilter).
			Do(c.Request.Context())
		if err != nil {
			slog.Error("failed to delete session object", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fully delete session"})
			return
		}

		if response != nil {
			slog.Info("deleted transcript objects", "response", &response.Output)
		}
		slog.Info("Successfully deleted all data for session", "session", session.String())
		c.JSON(http.StatusOK, gin.H{
			"status":          "success",
			"tenant":          session.Tenant,
			"conversation_id": session.Conversation,
		})
	}
}
