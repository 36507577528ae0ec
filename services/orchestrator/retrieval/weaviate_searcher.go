// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("driftline.orchestrator.retrieval")

var _ Searcher = (*WeaviateSearcher)(nil)

// WeaviateSearcher searches the Document class with nearText. Every search
// carries the session's tenant and conversation as a where filter, so one
// session can never ground against another's documents.
type WeaviateSearcher struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewWeaviateSearcher creates a session-scoped searcher.
func NewWeaviateSearcher(client *weaviate.Client, logger *slog.Logger) *WeaviateSearcher {
	return &WeaviateSearcher{client: client, logger: logger}
}

// documentFilter restricts a search to the session's own documents.
func documentFilter(session datatypes.Session) *filters.WhereBuilder {
	return filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"tenant"}).
			WithOperator(filters.Equal).
			WithValueString(session.Tenant),
		filters.Where().
			WithPath([]string{"conversation_id"}).
			WithOperator(filters.Equal).
			WithValueString(session.Conversation),
	})
}

func (s *WeaviateSearcher) Search(ctx context.Context, session datatypes.Session,
	query string, limit int) ([]Chunk, error) {

	ctx, span := tracer.Start(ctx, "WeaviateSearcher.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.session", session.String()),
		attribute.Int("retrieval.limit", limit),
	)

	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 4
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassDocument).
		WithFields(fields...).
		WithNearText(nearText).
		WithWhere(documentFilter(session)).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &BackendUnavailableError{Op: "search", Err: err}
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("search error: %s", result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &BackendUnavailableError{Op: "search", Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.DocumentQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	chunks := make([]Chunk, 0, len(parsed.Get.Document))
	for _, doc := range parsed.Get.Document {
		chunks = append(chunks, Chunk{
			Content:   doc.Content,
			Source:    doc.Source,
			Certainty: doc.Additional.Certainty,
		})
	}

	span.SetAttributes(attribute.Int("retrieval.chunks", len(chunks)))
	s.logger.Debug("similarity search complete",
		"session", session.String(), "chunks", len(chunks))
	return chunks, nil
}
