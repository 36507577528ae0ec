// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval runs similarity searches against the grounding corpus
// and decides whether a turn has enough context to be grounded.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

// BackendUnavailableError reports that the retrieval backend could not be
// reached. The pipeline fails open on this error: the turn proceeds
// ungrounded rather than failing outright.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("retrieval backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation may succeed on retry.
func (e *BackendUnavailableError) Retryable() bool {
	return true
}

// IsBackendUnavailable reports whether err wraps a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var target *BackendUnavailableError
	return errors.As(err, &target)
}

// =============================================================================
// Searcher Interface
// =============================================================================

// Chunk is one retrieved grounding document fragment.
type Chunk struct {
	Content   string
	Source    string
	Certainty float64
}

// SourceInfo converts the chunk to its wire representation.
func (c Chunk) SourceInfo() datatypes.SourceInfo {
	return datatypes.SourceInfo{Source: c.Source, Score: c.Certainty}
}

// Searcher runs a similarity search over the grounding corpus.
type Searcher interface {
	// Search returns up to limit chunks relevant to query, best first.
	// An unreachable backend yields a BackendUnavailableError.
	Search(ctx context.Context, session datatypes.Session, query string, limit int) ([]Chunk, error)
}
