// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// Session identifies one conversation scope.
//
// # Description
//
// A Session is the composite key (tenant, conversation) that scopes every
// history lookup and every vector filter. It is immutable for the lifetime
// of a conversation: the orchestrator passes it through unchanged, and no
// component ever rewrites either field mid-turn.
//
// # Fields
//
//   - Tenant: Owning tenant identifier (user or workspace).
//   - Conversation: Conversation identifier within the tenant.
//
// # Examples
//
//	session := datatypes.Session{Tenant: "acme", Conversation: "conv-42"}
//	msgs, err := store.Messages(ctx, session)
//
// # Limitations
//
//   - Both fields are opaque strings; no format is enforced here.
//     Request-level validation lives on TurnRequest.
type Session struct {
	Tenant       string `json:"tenant"`
	Conversation string `json:"conversation_id"`
}

// IsZero reports whether either half of the composite key is missing.
func (s Session) IsZero() bool {
	return s.Tenant == "" || s.Conversation == ""
}

// String renders the composite key for logs and span attributes.
// Never used as a storage key; stores filter on the two fields separately.
func (s Session) String() string {
	return fmt.Sprintf("%s/%s", s.Tenant, s.Conversation)
}
