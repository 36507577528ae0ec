// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// StreamEvent is one Server-Sent Event emitted during a streaming turn.
//
// # Description
//
// Events carry either a status update, a token fragment, retrieved source
// metadata, an error, or the final done marker. Every event is stamped
// with an Id, a creation timestamp, and a hash chained to the previous
// event for integrity verification on the client side.
//
// # Fields
//
//   - Type: "status" | "sources" | "token" | "done" | "error".
//   - Id: UUID v4 assigned by the SSE writer.
//   - CreatedAt: Unix milliseconds, assigned by the SSE writer.
//   - Content: Token text (token events).
//   - Message: Human-readable status (status events).
//   - Error: Sanitized error message (error events).
//   - Tenant, ConversationId: Session identity (done events).
//   - Sources: Retrieved documents (sources events).
//   - Hash, PrevHash: SHA-256 chain maintained by the SSE writer.
type StreamEvent struct {
	Type           string       `json:"type"`
	Id             string       `json:"id,omitempty"`
	CreatedAt      int64        `json:"created_at,omitempty"`
	Content        string       `json:"content,omitempty"`
	Message        string       `json:"message,omitempty"`
	Error          string       `json:"error,omitempty"`
	Tenant         string       `json:"tenant,omitempty"`
	ConversationId string       `json:"conversation_id,omitempty"`
	Sources        []SourceInfo `json:"sources,omitempty"`
	Hash           string       `json:"hash,omitempty"`
	PrevHash       string       `json:"prev_hash,omitempty"`
}

// SourceInfo describes one retrieved document surfaced to the client.
type SourceInfo struct {
	Source string  `json:"source"`
	Score  float64 `json:"score,omitempty"`
}
