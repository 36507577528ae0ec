// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal pattern required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must have json tags matching the expected
// response shape.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("TurnMessage").Do(ctx)
//	if err != nil { ... }
//	parsed, err := ParseGraphQLResponse[TurnMessageQueryResponse](resp)
//
// # Limitations
//
//   - Type mismatches yield zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// TurnMessageResult is one TurnMessage object as returned by a Get query.
type TurnMessageResult struct {
	Tenant         string `json:"tenant"`
	ConversationId string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	ModelDetail    string `json:"model_detail"`
	CreatedAt      int64  `json:"created_at"`
	Seq            int64  `json:"seq"`
	Additional     struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// TurnMessageQueryResponse is the Get response shape for the TurnMessage class.
type TurnMessageQueryResponse struct {
	Get struct {
		TurnMessage []TurnMessageResult `json:"TurnMessage"`
	} `json:"Get"`
}

// TurnMessageAggregateResponse is the Aggregate response shape used for
// counting a session's messages.
type TurnMessageAggregateResponse struct {
	Aggregate struct {
		TurnMessage []struct {
			Meta struct {
				Count float64 `json:"count"`
			} `json:"meta"`
		} `json:"TurnMessage"`
	} `json:"Aggregate"`
}

// SessionResult is one Session object from a Get query.
type SessionResult struct {
	Tenant         string `json:"tenant"`
	ConversationId string `json:"conversation_id"`
	Summary        string `json:"summary"`
	Timestamp      int64  `json:"timestamp"`
	Additional     struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// SessionQueryResponse is the Get response shape for the Session class.
type SessionQueryResponse struct {
	Get struct {
		Session []SessionResult `json:"Session"`
	} `json:"Get"`
}

// DocumentResult is one Document object from a similarity search.
type DocumentResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Additional struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// DocumentQueryResponse is the Get response shape for the Document class.
type DocumentQueryResponse struct {
	Get struct {
		Document []DocumentResult `json:"Document"`
	} `json:"Get"`
}
