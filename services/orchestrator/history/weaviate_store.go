// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("driftline.orchestrator.history")

// maxTranscriptMessages bounds a full-transcript fetch. Conversations past
// this size should use LastN.
const maxTranscriptMessages = 1000

var _ Store = (*WeaviateStore)(nil)

// WeaviateStore persists conversation history in the TurnMessage class and
// session summaries in the Session class.
type WeaviateStore struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewWeaviateStore creates a store backed by the given client.
func NewWeaviateStore(client *weaviate.Client, logger *slog.Logger) *WeaviateStore {
	return &WeaviateStore{client: client, logger: logger}
}

// turnMessageFields is the field set fetched for every transcript query.
var turnMessageFields = []graphql.Field{
	{Name: "tenant"},
	{Name: "conversation_id"},
	{Name: "role"},
	{Name: "content"},
	{Name: "model_detail"},
	{Name: "created_at"},
	{Name: "seq"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
}

// sessionFilter matches all TurnMessage objects of one conversation.
func sessionFilter(session datatypes.Session) *filters.WhereBuilder {
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

// deterministicUUID derives a stable object ID from the message identity so
// a retried append lands on the same object instead of duplicating it.
func deterministicUUID(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}

// =============================================================================
// Reads
// =============================================================================

func (w *WeaviateStore) Messages(ctx context.Context, session datatypes.Session) ([]datatypes.TurnMessage, error) {
	return w.fetch(ctx, session, graphql.Asc, maxTranscriptMessages)
}

func (w *WeaviateStore) LastN(ctx context.Context, session datatypes.Session, n int) ([]datatypes.TurnMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := w.fetch(ctx, session, graphql.Desc, n)
	if err != nil {
		return nil, err
	}
	// Descending fetch, ascending contract.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (w *WeaviateStore) fetch(ctx context.Context, session datatypes.Session,
	order graphql.SortOrder, limit int) ([]datatypes.TurnMessage, error) {

	ctx, span := tracer.Start(ctx, "WeaviateStore.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("history.session", session.String()),
		attribute.Int("history.limit", limit),
	)

	sortBy := graphql.Sort{
		Path:  []string{"seq"},
		Order: order,
	}

	resp, err := w.client.GraphQL().Get().
		WithClassName(datatypes.ClassTurnMessage).
		WithWhere(sessionFilter(session)).
		WithSort(sortBy).
		WithLimit(limit).
		WithFields(turnMessageFields...).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &UnavailableError{Op: "fetch", Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TurnMessageQueryResponse](resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse transcript response: %w", err)
	}

	msgs := make([]datatypes.TurnMessage, 0, len(parsed.Get.TurnMessage))
	for _, r := range parsed.Get.TurnMessage {
		msgs = append(msgs, resultToMessage(r))
	}
	return msgs, nil
}

func resultToMessage(r datatypes.TurnMessageResult) datatypes.TurnMessage {
	msg := datatypes.TurnMessage{
		Role:      datatypes.Role(r.Role),
		Content:   r.Content,
		CreatedAt: time.UnixMilli(r.CreatedAt),
		Seq:       r.Seq,
	}
	if r.ModelDetail != "" {
		var detail datatypes.ModelDetail
		if err := json.Unmarshal([]byte(r.ModelDetail), &detail); err == nil {
			msg.Detail = &detail
		}
	}
	return msg
}

func (w *WeaviateStore) HasNoMessages(ctx context.Context, session datatypes.Session) (bool, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.HasNoMessages")
	defer span.End()
	span.SetAttributes(attribute.String("history.session", session.String()))

	resp, err := w.client.GraphQL().Aggregate().
		WithClassName(datatypes.ClassTurnMessage).
		WithWhere(sessionFilter(session)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, &UnavailableError{Op: "count", Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TurnMessageAggregateResponse](resp)
	if err != nil {
		return false, fmt.Errorf("failed to parse aggregate response: %w", err)
	}
	if len(parsed.Aggregate.TurnMessage) == 0 {
		return true, nil
	}
	return parsed.Aggregate.TurnMessage[0].Meta.Count == 0, nil
}

func (w *WeaviateStore) count(ctx context.Context, session datatypes.Session) (int64, error) {
	resp, err := w.client.GraphQL().Aggregate().
		WithClassName(datatypes.ClassTurnMessage).
		WithWhere(sessionFilter(session)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, &UnavailableError{Op: "count", Err: err}
	}
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TurnMessageAggregateResponse](resp)
	if err != nil {
		return 0, fmt.Errorf("failed to parse aggregate response: %w", err)
	}
	if len(parsed.Aggregate.TurnMessage) == 0 {
		return 0, nil
	}
	return int64(parsed.Aggregate.TurnMessage[0].Meta.Count), nil
}

func (w *WeaviateStore) HasMessage(ctx context.Context, session datatypes.Session,
	role datatypes.Role, content string) (bool, error) {

	ctx, span := tracer.Start(ctx, "WeaviateStore.HasMessage")
	defer span.End()

	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		sessionFilter(session),
		filters.Where().
			WithPath([]string{"role"}).
			WithOperator(filters.Equal).
			WithValueString(string(role)),
		filters.Where().
			WithPath([]string{"content"}).
			WithOperator(filters.Equal).
			WithValueString(content),
	})

	resp, err := w.client.GraphQL().Get().
		WithClassName(datatypes.ClassTurnMessage).
		WithWhere(where).
		WithLimit(1).
		WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}}).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, &UnavailableError{Op: "has_message", Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TurnMessageQueryResponse](resp)
	if err != nil {
		return false, fmt.Errorf("failed to parse has_message response: %w", err)
	}
	return len(parsed.Get.TurnMessage) > 0, nil
}

func (w *WeaviateStore) FindLatest(ctx context.Context, session datatypes.Session,
	role datatypes.Role) (*datatypes.TurnMessage, error) {

	ctx, span := tracer.Start(ctx, "WeaviateStore.FindLatest")
	defer span.End()
	span.SetAttributes(attribute.String("history.role", string(role)))

	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		sessionFilter(session),
		filters.Where().
			WithPath([]string{"role"}).
			WithOperator(filters.Equal).
			WithValueString(string(role)),
	})

	// Batched appends share one created_at, so seq breaks timestamp ties.
	sorts := []graphql.Sort{
		{Path: []string{"created_at"}, Order: graphql.Desc},
		{Path: []string{"seq"}, Order: graphql.Desc},
	}

	resp, err := w.client.GraphQL().Get().
		WithClassName(datatypes.ClassTurnMessage).
		WithWhere(where).
		WithSort(sorts...).
		WithLimit(1).
		WithFields(turnMessageFields...).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &UnavailableError{Op: "find_latest", Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TurnMessageQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse find_latest response: %w", err)
	}
	if len(parsed.Get.TurnMessage) == 0 {
		return nil, nil
	}
	msg := resultToMessage(parsed.Get.TurnMessage[0])
	return &msg, nil
}

// =============================================================================
// Writes
// =============================================================================

func (w *WeaviateStore) Append(ctx context.Context, session datatypes.Session,
	msg datatypes.TurnMessage) (datatypes.TurnMessage, error) {
	persisted, err := w.AppendBulk(ctx, session, []datatypes.TurnMessage{msg})
	if err != nil {
		return datatypes.TurnMessage{}, err
	}
	return persisted[0], nil
}

func (w *WeaviateStore) AppendBulk(ctx context.Context, session datatypes.Session,
	msgs []datatypes.TurnMessage) ([]datatypes.TurnMessage, error) {

	if len(msgs) == 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "WeaviateStore.AppendBulk")
	defer span.End()
	span.SetAttributes(
		attribute.String("history.session", session.String()),
		attribute.Int("history.batch_size", len(msgs)),
	)

	nextSeq, err := w.count(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now()
	objects := make([]*models.Object, len(msgs))
	persisted := make([]datatypes.TurnMessage, len(msgs))
	for i, msg := range msgs {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("refusing to append message with invalid role %q", msg.Role)
		}
		msg.CreatedAt = now
		msg.Seq = nextSeq + int64(i)
		persisted[i] = msg

		detailJSON := ""
		if msg.Detail != nil {
			raw, err := json.Marshal(msg.Detail)
			if err != nil {
				return nil, fmt.Errorf("failed to encode model detail: %w", err)
			}
			detailJSON = string(raw)
		}

		id := deterministicUUID(session.Tenant, session.Conversation,
			string(msg.Role), msg.Content, fmt.Sprintf("%d", msg.Seq))

		objects[i] = &models.Object{
			Class: datatypes.ClassTurnMessage,
			ID:    strfmt.UUID(id),
			Properties: map[string]interface{}{
				"tenant":          session.Tenant,
				"conversation_id": session.Conversation,
				"role":            string(msg.Role),
				"content":         msg.Content,
				"model_detail":    detailJSON,
				"created_at":      now.UnixMilli(),
				"seq":             msg.Seq,
			},
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &UnavailableError{Op: "append", Err: err}
	}

	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				w.logger.Warn("history batch item failed",
					"session", session.String(), "error", errItem.Message)
			}
			return nil, &UnavailableError{Op: "append",
				Err: fmt.Errorf("batch item rejected: %s", item.Result.Errors.Error[0].Message)}
		}
	}

	w.logger.Debug("appended history messages",
		"session", session.String(), "count", len(msgs), "first_seq", nextSeq)
	return persisted, nil
}

func (w *WeaviateStore) UpsertSummary(ctx context.Context, session datatypes.Session,
	summary string) error {

	ctx, span := tracer.Start(ctx, "WeaviateStore.UpsertSummary")
	defer span.End()
	span.SetAttributes(attribute.String("history.session", session.String()))

	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"tenant"}).
			WithOperator(filters.Equal).
			WithValueString(session.Tenant),
		filters.Where().
			WithPath([]string{"conversation_id"}).
			WithOperator(filters.Equal).
			WithValueString(session.Conversation),
	})

	resp, err := w.client.GraphQL().Get().
		WithClassName(datatypes.ClassSession).
		WithWhere(where).
		WithLimit(1).
		WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}}).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &UnavailableError{Op: "upsert_summary", Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.SessionQueryResponse](resp)
	if err != nil {
		return fmt.Errorf("failed to parse session lookup response: %w", err)
	}

	props := map[string]interface{}{
		"tenant":          session.Tenant,
		"conversation_id": session.Conversation,
		"summary":         summary,
		"timestamp":       time.Now().UnixMilli(),
	}

	if len(parsed.Get.Session) == 0 {
		if _, err := w.client.Data().Creator().
			WithClassName(datatypes.ClassSession).
			WithProperties(props).
			Do(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return &UnavailableError{Op: "upsert_summary", Err: err}
		}
		w.logger.Info("created session record with summary", "session", session.String())
		return nil
	}

	objID := parsed.Get.Session[0].Additional.ID
	if err := w.client.Data().Updater().
		WithClassName(datatypes.ClassSession).
		WithID(objID).
		WithProperties(props).
		WithMerge().
		Do(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &UnavailableError{Op: "upsert_summary", Err: err}
	}
	w.logger.Debug("updated session summary", "session", session.String())
	return nil
}
