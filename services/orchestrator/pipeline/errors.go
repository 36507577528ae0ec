// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"fmt"
)

// GenerationError reports a backend failure during generation. Fragments
// already delivered before the failure stay delivered; the turn ends in
// StateFailed.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationError reports whether err wraps a GenerationError.
func IsGenerationError(err error) bool {
	var target *GenerationError
	return errors.As(err, &target)
}

// AbandonedError reports that the fragment consumer went away mid-stream.
// The pipeline stops pulling from the backend and the caller must skip
// post-turn work that assumes a delivered answer.
type AbandonedError struct {
	Err error
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("stream abandoned by consumer: %v", e.Err)
}

func (e *AbandonedError) Unwrap() error {
	return e.Err
}

// IsAbandoned reports whether err wraps an AbandonedError.
func IsAbandoned(err error) bool {
	var target *AbandonedError
	return errors.As(err, &target)
}
