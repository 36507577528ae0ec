// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// ParseGraphQLResponse Tests
// =============================================================================

func TestParseGraphQLResponse_TurnMessages(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"TurnMessage": []interface{}{
					map[string]interface{}{
						"tenant":          "acme",
						"conversation_id": "conv-42",
						"role":            "human",
						"content":         "Hello",
						"created_at":      float64(1700000000000),
						"seq":             float64(3),
					},
				},
			},
		},
	}

	parsed, err := ParseGraphQLResponse[TurnMessageQueryResponse](resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := parsed.Get.TurnMessage
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != "human" || msgs[0].Content != "Hello" {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
	if msgs[0].Seq != 3 {
		t.Errorf("expected seq 3, got %d", msgs[0].Seq)
	}
}

func TestParseGraphQLResponse_AggregateCount(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Aggregate": map[string]interface{}{
				"TurnMessage": []interface{}{
					map[string]interface{}{
						"meta": map[string]interface{}{"count": float64(7)},
					},
				},
			},
		},
	}

	parsed, err := ParseGraphQLResponse[TurnMessageAggregateResponse](resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agg := parsed.Aggregate.TurnMessage
	if len(agg) != 1 {
		t.Fatalf("expected 1 aggregate row, got %d", len(agg))
	}
	if agg[0].Meta.Count != 7 {
		t.Errorf("expected count 7, got %f", agg[0].Meta.Count)
	}
}

func TestParseGraphQLResponse_EmptyResult(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"Document": []interface{}{},
			},
		},
	}

	parsed, err := ParseGraphQLResponse[DocumentQueryResponse](resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Get.Document) != 0 {
		t.Errorf("expected no documents, got %d", len(parsed.Get.Document))
	}
}

func TestParseGraphQLResponse_NilResponse(t *testing.T) {
	if _, err := ParseGraphQLResponse[TurnMessageQueryResponse](nil); err == nil {
		t.Error("expected error for nil response, got nil")
	}
}
