// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"log/slog"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
)

// DefaultProbeLimit is how many chunks the gate fetches when probing for
// context. One would answer the yes/no question, but the probe results are
// reused as the grounded turn's context, so fetch a useful set.
const DefaultProbeLimit = 4

// Gate decides whether a turn should be grounded.
type Gate struct {
	searcher   Searcher
	probeLimit int
	logger     *slog.Logger
}

// NewGate creates a gate over the given searcher.
func NewGate(searcher Searcher, logger *slog.Logger) *Gate {
	return &Gate{searcher: searcher, probeLimit: DefaultProbeLimit, logger: logger}
}

// Decision is the gate's verdict for one turn.
type Decision struct {
	// Grounded is true when the corpus has context for the question.
	Grounded bool

	// Chunks holds the probe results when Grounded. Reused as the QA
	// context so the grounded chain does not search twice.
	Chunks []Chunk

	// FailedOpen is true when the backend was unreachable and the gate
	// chose the direct path instead of failing the turn.
	FailedOpen bool
}

// Decide probes the corpus for the question.
//
// # Description
//
// Runs a similarity search and reports grounded when at least one chunk
// comes back. A BackendUnavailableError fails open: the decision is
// ungrounded with FailedOpen set, and the error is returned alongside so
// the caller can record it. Any other error is returned with a zero
// decision.
func (g *Gate) Decide(ctx context.Context, session datatypes.Session, question string) (Decision, error) {
	chunks, err := g.searcher.Search(ctx, session, question, g.probeLimit)
	if err != nil {
		if IsBackendUnavailable(err) {
			g.logger.Warn("retrieval backend unreachable, failing open to direct generation",
				"session", session.String(), "error", err)
			return Decision{Grounded: false, FailedOpen: true}, err
		}
		return Decision{}, err
	}

	if len(chunks) == 0 {
		return Decision{Grounded: false}, nil
	}
	return Decision{Grounded: true, Chunks: chunks}, nil
}
