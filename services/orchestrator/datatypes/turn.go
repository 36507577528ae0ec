// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Role classifies who authored a turn message.
type Role string

// Turn message roles. These are stored verbatim in the history store and
// used as query filters, so the values are part of the storage contract.
const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three storable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleHuman, RoleAssistant:
		return true
	}
	return false
}

// ModelDetail records which model produced an assistant message and with
// what parameters. Optional; human and system messages carry none.
type ModelDetail struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// TurnMessage is one persisted message in a session's history.
//
// # Description
//
// TurnMessage is append-only: once the history store has assigned
// CreatedAt and Seq, the message is owned by the store and is never
// mutated or deleted by the orchestration core. Ordering within a session
// is CreatedAt ascending, Seq breaking ties (Seq is the store-assigned
// insertion counter).
//
// # Fields
//
//   - Role: system, human, or assistant.
//   - Content: Message text.
//   - Detail: Optional model/parameter metadata for assistant messages.
//   - CreatedAt: Store-assigned creation time.
//   - Seq: Store-assigned insertion order, tie-breaker for CreatedAt.
//
// # Limitations
//
//   - CreatedAt and Seq are zero until the message has been appended.
type TurnMessage struct {
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Detail    *ModelDetail `json:"model_detail,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Seq       int64        `json:"seq"`
}

// NewTurnMessage builds an unpersisted message with the given role and
// content. The store fills CreatedAt and Seq on append.
func NewTurnMessage(role Role, content string) TurnMessage {
	return TurnMessage{Role: role, Content: content}
}
