// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
)

// =============================================================================
// Stream Event Types
// =============================================================================

// StreamEventType distinguishes the kinds of events a backend can emit
// while a generation is in flight.
type StreamEventType string

const (
	// StreamEventToken carries a fragment of the visible response.
	StreamEventToken StreamEventType = "token"

	// StreamEventThinking carries reasoning tokens from models that expose them.
	StreamEventThinking StreamEventType = "thinking"

	// StreamEventError carries a backend-reported failure mid-stream.
	StreamEventError StreamEventType = "error"

	// StreamEventDone marks the end of a successful stream.
	StreamEventDone StreamEventType = "done"
)

// StreamEvent is a single unit of streamed output from an LLM backend.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamCallback receives each StreamEvent in order. Returning a non-nil
// error aborts the stream; the backend stops reading and propagates the
// error to the ChatStream caller.
type StreamCallback func(event StreamEvent) error

// =============================================================================
// Stream Configuration
// =============================================================================

// StreamConfig bounds what a backend will forward from a stream.
type StreamConfig struct {
	// RedactThinking drops thinking events instead of forwarding them.
	RedactThinking bool

	// MaxThinkingLength caps forwarded thinking characters. Zero means
	// unlimited.
	MaxThinkingLength int

	// MaxResponseLength caps forwarded response characters across the whole
	// stream. Zero means unlimited.
	MaxResponseLength int

	// RateLimitPerSecond caps callback invocations per second. Zero means
	// unlimited.
	RateLimitPerSecond int
}

// DefaultStreamConfig returns the streaming limits used when a caller does
// not supply its own.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		RedactThinking:     false,
		MaxThinkingLength:  0,
		MaxResponseLength:  100 * 1024,
		RateLimitPerSecond: 0,
	}
}

// =============================================================================
// Stream Processor
// =============================================================================

// DefaultStreamProcessor applies StreamConfig limits to a chunk stream and
// forwards the surviving events to a callback. It is not safe for
// concurrent use; each stream gets its own processor.
type DefaultStreamProcessor struct {
	cfg            StreamConfig
	tokenCount     int
	responseLength int
	thinkingLength int
}

// NewDefaultStreamProcessor creates a processor with the given limits.
// The second argument is reserved for a rate limiter and may be nil.
func NewDefaultStreamProcessor(cfg StreamConfig, _ interface{ Wait(context.Context) error }) *DefaultStreamProcessor {
	return &DefaultStreamProcessor{cfg: cfg}
}

// ProcessChunk applies limits to one decoded chunk and invokes the callback
// for each event the chunk produces.
//
// # Outputs
//
//   - bool: True when the stream is complete (done flag or error chunk).
//   - error: Chunk error, callback error, or nil.
func (p *DefaultStreamProcessor) ProcessChunk(ctx context.Context, chunk *ollamaStreamChunk,
	callback StreamCallback) (bool, error) {

	if chunk.Error != "" {
		if cbErr := callback(StreamEvent{Type: StreamEventError, Error: chunk.Error}); cbErr != nil {
			return true, fmt.Errorf("stream callback failed: %w", cbErr)
		}
		return true, fmt.Errorf("stream reported error: %s", chunk.Error)
	}

	if chunk.Thinking != "" && !p.cfg.RedactThinking {
		content := chunk.Thinking
		if p.cfg.MaxThinkingLength > 0 {
			remaining := p.cfg.MaxThinkingLength - p.thinkingLength
			if remaining <= 0 {
				content = ""
			} else if len(content) > remaining {
				content = content[:remaining]
			}
		}
		if content != "" {
			p.thinkingLength += len(content)
			if cbErr := callback(StreamEvent{Type: StreamEventThinking, Content: content}); cbErr != nil {
				return false, fmt.Errorf("stream callback failed: %w", cbErr)
			}
		}
	}

	if chunk.Message.Content != "" {
		content := chunk.Message.Content
		if p.cfg.MaxResponseLength > 0 {
			remaining := p.cfg.MaxResponseLength - p.responseLength
			if remaining <= 0 {
				content = ""
			} else if len(content) > remaining {
				content = content[:remaining]
			}
		}
		if content != "" {
			p.tokenCount++
			p.responseLength += len(content)
			if cbErr := callback(StreamEvent{Type: StreamEventToken, Content: content}); cbErr != nil {
				return false, fmt.Errorf("stream callback failed: %w", cbErr)
			}
		}
	}

	return chunk.Done, nil
}

// GetTokenCount returns the number of response tokens forwarded so far.
func (p *DefaultStreamProcessor) GetTokenCount() int {
	return p.tokenCount
}

// GetResponseLength returns the number of response characters forwarded so far.
func (p *DefaultStreamProcessor) GetResponseLength() int {
	return p.responseLength
}
