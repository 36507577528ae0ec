// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"sync"
	"time"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps conversation history in process memory. It backs the
// standalone deployment mode and the test suite; semantics match
// WeaviateStore's contract.
type MemoryStore struct {
	mu        sync.RWMutex
	messages  map[datatypes.Session][]datatypes.TurnMessage
	summaries map[datatypes.Session]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[datatypes.Session][]datatypes.TurnMessage),
		summaries: make(map[datatypes.Session]string),
	}
}

func (m *MemoryStore) Messages(ctx context.Context, session datatypes.Session) ([]datatypes.TurnMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[session]
	out := make([]datatypes.TurnMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) LastN(ctx context.Context, session datatypes.Session, n int) ([]datatypes.TurnMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[session]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]datatypes.TurnMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) HasNoMessages(ctx context.Context, session datatypes.Session) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[session]) == 0, nil
}

func (m *MemoryStore) Append(ctx context.Context, session datatypes.Session,
	msg datatypes.TurnMessage) (datatypes.TurnMessage, error) {
	persisted, err := m.AppendBulk(ctx, session, []datatypes.TurnMessage{msg})
	if err != nil {
		return datatypes.TurnMessage{}, err
	}
	return persisted[0], nil
}

func (m *MemoryStore) AppendBulk(ctx context.Context, session datatypes.Session,
	msgs []datatypes.TurnMessage) ([]datatypes.TurnMessage, error) {

	if len(msgs) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing := m.messages[session]
	persisted := make([]datatypes.TurnMessage, 0, len(msgs))
	for _, msg := range msgs {
		msg.CreatedAt = now
		msg.Seq = int64(len(existing))
		existing = append(existing, msg)
		persisted = append(persisted, msg)
	}
	m.messages[session] = existing
	return persisted, nil
}

func (m *MemoryStore) HasMessage(ctx context.Context, session datatypes.Session,
	role datatypes.Role, content string) (bool, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[session] {
		if msg.Role == role && msg.Content == content {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) FindLatest(ctx context.Context, session datatypes.Session,
	role datatypes.Role) (*datatypes.TurnMessage, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[session]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			msg := msgs[i]
			return &msg, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UpsertSummary(ctx context.Context, session datatypes.Session,
	summary string) error {

	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[session] = summary
	return nil
}

// Summary returns the stored summary for a session, if any. Test helper.
func (m *MemoryStore) Summary(session datatypes.Session) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[session]
	return s, ok
}
