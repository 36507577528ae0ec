// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history persists conversation turns. The store is append-only:
// messages are never edited or removed, and ordering is carried by a
// per-conversation sequence number assigned at append time.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

// UnavailableError reports that the history backend could not be reached.
// Callers must treat this as fatal for the current turn: generating without
// durable history risks a response the transcript never saw.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("history store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation may succeed on retry.
func (e *UnavailableError) Retryable() bool {
	return true
}

// IsUnavailable reports whether err wraps an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

// =============================================================================
// Store Interface
// =============================================================================

// Store is the persistence boundary for conversation history.
//
// Implementations assign CreatedAt and Seq on append; callers must not set
// them. FindLatest returns (nil, nil) when no message matches.
type Store interface {
	// Messages returns the full ordered transcript, oldest first.
	Messages(ctx context.Context, session datatypes.Session) ([]datatypes.TurnMessage, error)

	// LastN returns the trailing n messages in order, oldest first. A zero
	// or negative n returns an empty slice.
	LastN(ctx context.Context, session datatypes.Session, n int) ([]datatypes.TurnMessage, error)

	// HasNoMessages reports whether the conversation is empty.
	HasNoMessages(ctx context.Context, session datatypes.Session) (bool, error)

	// Append persists one message and returns it with CreatedAt and Seq
	// assigned.
	Append(ctx context.Context, session datatypes.Session, msg datatypes.TurnMessage) (datatypes.TurnMessage, error)

	// AppendBulk persists several messages in one round trip, preserving
	// slice order, and returns them as persisted.
	AppendBulk(ctx context.Context, session datatypes.Session, msgs []datatypes.TurnMessage) ([]datatypes.TurnMessage, error)

	// HasMessage reports whether a message with this role and exact content
	// already exists in the conversation.
	HasMessage(ctx context.Context, session datatypes.Session, role datatypes.Role, content string) (bool, error)

	// FindLatest returns the newest message with the given role, or
	// (nil, nil) when none exists.
	FindLatest(ctx context.Context, session datatypes.Session, role datatypes.Role) (*datatypes.TurnMessage, error)

	// UpsertSummary stores the rolling session summary, creating the
	// session record if needed.
	UpsertSummary(ctx context.Context, session datatypes.Session, summary string) error
}

// =============================================================================
// Role Helpers
// =============================================================================

// AppendSystem appends a system message.
func AppendSystem(ctx context.Context, s Store, session datatypes.Session,
	content string) (datatypes.TurnMessage, error) {
	return s.Append(ctx, session, datatypes.NewTurnMessage(datatypes.RoleSystem, content))
}

// AppendHuman appends a human message.
func AppendHuman(ctx context.Context, s Store, session datatypes.Session,
	content string) (datatypes.TurnMessage, error) {
	return s.Append(ctx, session, datatypes.NewTurnMessage(datatypes.RoleHuman, content))
}

// AppendAI appends an assistant message with its generation detail.
func AppendAI(ctx context.Context, s Store, session datatypes.Session, content string,
	detail *datatypes.ModelDetail) (datatypes.TurnMessage, error) {
	msg := datatypes.NewTurnMessage(datatypes.RoleAssistant, content)
	msg.Detail = detail
	return s.Append(ctx, session, msg)
}
