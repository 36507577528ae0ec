// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Class Names
// =============================================================================

const (
	// ClassTurnMessage stores the append-only conversation history.
	ClassTurnMessage = "TurnMessage"

	// ClassSession stores per-session metadata and rolling summaries.
	ClassSession = "Session"

	// ClassDocument stores the grounding corpus used for retrieval.
	ClassDocument = "Document"
)

// =============================================================================
// Class Definitions
// =============================================================================

// TurnMessageClass returns the schema definition for conversation history.
//
// Vectorization is disabled: history is fetched by filter and sort, never by
// similarity, so embedding every message would be wasted work.
func TurnMessageClass() *models.Class {
	return &models.Class{
		Class:       ClassTurnMessage,
		Description: "Append-only conversation history message",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "tenant", DataType: []string{"text"}, Description: "Owning tenant identifier"},
			{Name: "conversation_id", DataType: []string{"text"}, Description: "Conversation within the tenant"},
			{Name: "role", DataType: []string{"text"}, Description: "system, human, or assistant"},
			{Name: "content", DataType: []string{"text"}, Description: "Message body"},
			{Name: "model_detail", DataType: []string{"text"}, Description: "JSON-encoded generation detail for ai messages"},
			{Name: "created_at", DataType: []string{"int"}, Description: "Unix milliseconds at append time"},
			{Name: "seq", DataType: []string{"int"}, Description: "Monotonic position within the conversation"},
		},
	}
}

// SessionClass returns the schema definition for session metadata.
func SessionClass() *models.Class {
	return &models.Class{
		Class:       ClassSession,
		Description: "Session metadata and rolling summary",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "tenant", DataType: []string{"text"}, Description: "Owning tenant identifier"},
			{Name: "conversation_id", DataType: []string{"text"}, Description: "Conversation within the tenant"},
			{Name: "summary", DataType: []string{"text"}, Description: "Most recent turn summary"},
			{Name: "timestamp", DataType: []string{"int"}, Description: "Unix milliseconds of last update"},
		},
	}
}

// DocumentClass returns the schema definition for the grounding corpus.
//
// This is the only vectorized class: retrieval gating and context assembly
// both run similarity searches against it.
func DocumentClass() *models.Class {
	return &models.Class{
		Class:       ClassDocument,
		Description: "Grounding document chunk for retrieval",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}, Description: "Chunk text"},
			{Name: "source", DataType: []string{"text"}, Description: "Origin of the chunk"},
			{Name: "tenant", DataType: []string{"text"}, Description: "Owning tenant identifier"},
			{Name: "conversation_id", DataType: []string{"text"}, Description: "Conversation the chunk belongs to"},
		},
	}
}

// =============================================================================
// Schema Bootstrap
// =============================================================================

// EnsureSchema creates any missing Driftline classes on the given Weaviate
// instance. Existing classes are left untouched; this never migrates.
//
// # Inputs
//
//   - ctx: Cancellation context.
//   - client: Connected Weaviate client.
//   - logger: Destination for per-class creation logs.
//
// # Outputs
//
//   - error: First creation failure encountered, or nil.
func EnsureSchema(ctx context.Context, client *weaviate.Client, logger *slog.Logger) error {
	classes := []*models.Class{
		TurnMessageClass(),
		SessionClass(),
		DocumentClass(),
	}

	for _, class := range classes {
		exists, err := client.Schema().ClassExistenceChecker().
			WithClassName(class.Class).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to check existence of class %s: %w", class.Class, err)
		}
		if exists {
			logger.Debug("schema class already present", "class", class.Class)
			continue
		}

		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("failed to create class %s: %w", class.Class, err)
		}
		logger.Info("created schema class", "class", class.Class)
	}

	return nil
}
