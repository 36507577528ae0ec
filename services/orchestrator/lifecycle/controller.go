// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lifecycle sequences a turn end to end: seed the conversation,
// persist the question, run the pipeline, persist the answer, update the
// session summary.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/driftline/driftline/services/llm"
	"github.com/driftline/driftline/services/orchestrator/datatypes"
	"github.com/driftline/driftline/services/orchestrator/history"
	"github.com/driftline/driftline/services/orchestrator/pipeline"
	"github.com/driftline/driftline/services/orchestrator/prompts"
)

var tracer = otel.Tracer("driftline.orchestrator.lifecycle")

// DefaultSeedPrompt is the system message seeded into every new
// conversation.
const DefaultSeedPrompt = "You are a helpful assistant."

// maxFallbackSummaryLength bounds the fallback summary built from the
// question when summarization fails.
const maxFallbackSummaryLength = 100

// =============================================================================
// Errors
// =============================================================================

// SummarizationError reports that the post-turn summary hook failed. The
// turn itself succeeded; callers surface this as a warning, not a failure.
type SummarizationError struct {
	Err error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("session summarization failed: %v", e.Err)
}

func (e *SummarizationError) Unwrap() error {
	return e.Err
}

// IsSummarizationError reports whether err wraps a SummarizationError.
func IsSummarizationError(err error) bool {
	var target *SummarizationError
	return errors.As(err, &target)
}

// =============================================================================
// Controller
// =============================================================================

// Config tunes the controller.
type Config struct {
	// SeedPrompt is the system message seeded into new conversations.
	// Empty means DefaultSeedPrompt.
	SeedPrompt string
}

// Outcome reports everything a completed turn produced.
type Outcome struct {
	// Result is the pipeline's result.
	Result *pipeline.Result

	// Summary is the session summary written after the turn, empty when
	// the hook was skipped or failed.
	Summary string

	// SummarizeErr is non-nil when the summary hook failed. The turn
	// still succeeded.
	SummarizeErr error
}

// Controller owns the turn lifecycle.
type Controller struct {
	store    history.Store
	llm      llm.LLMClient
	pipeline *pipeline.Pipeline
	registry *prompts.Registry
	cfg      Config
	logger   *slog.Logger
}

// NewController assembles a controller.
func NewController(store history.Store, llmClient llm.LLMClient, p *pipeline.Pipeline,
	registry *prompts.Registry, cfg Config, logger *slog.Logger) *Controller {
	if cfg.SeedPrompt == "" {
		cfg.SeedPrompt = DefaultSeedPrompt
	}
	return &Controller{
		store:    store,
		llm:      llmClient,
		pipeline: p,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// RunTurn executes one full turn.
//
// # Description
//
// Seeds the conversation's system message if absent, persists the user's
// question, runs the generation pipeline, persists the answer, and updates
// the session summary. The seed and the question are durable before any
// generation starts: a turn that fails mid-stream never leaves the
// transcript without the question that caused it.
//
// Abandonment (the emit callback failing) skips the answer persist and the
// summary hook: nothing claims the client received an answer it did not.
//
// # Inputs
//
//   - ctx: Cancels the turn.
//   - req: Validated turn request.
//   - emit: Receives cleaned answer fragments.
//
// # Outputs
//
//   - *Outcome: Non-nil on success, carrying the result and any summary
//     hook failure. Nil when the turn itself failed.
//   - error: History failure, pipeline failure, or abandonment.
func (c *Controller) RunTurn(ctx context.Context, req *datatypes.TurnRequest,
	emit pipeline.EmitFunc) (*Outcome, error) {

	ctx, span := tracer.Start(ctx, "Controller.RunTurn")
	defer span.End()

	session := req.Session()
	span.SetAttributes(
		attribute.String("turn.session", session.String()),
		attribute.String("turn.request_id", req.RequestID),
	)

	if err := c.seedConversation(ctx, session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// The question goes in before generation so a mid-stream failure still
	// leaves a coherent transcript.
	if _, err := history.AppendHuman(ctx, c.store, session, req.Message); err != nil {
		c.logger.Error("failed to persist question, aborting turn",
			"session", session.String(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := c.pipeline.Run(ctx, session, req.Message, emit)
	if err != nil {
		if pipeline.IsAbandoned(err) {
			c.logger.Info("turn abandoned by client, skipping persist and summary",
				"session", session.String())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if _, err := history.AppendAI(ctx, c.store, session, result.Answer, result.Detail); err != nil {
		// The answer was delivered but could not be persisted. Fail the
		// turn so the client knows the transcript is behind.
		c.logger.Error("failed to persist answer",
			"session", session.String(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcome := &Outcome{Result: result}
	outcome.Summary, outcome.SummarizeErr = c.summarize(ctx, session, req.Message)
	if outcome.SummarizeErr != nil {
		c.logger.Warn("summary hook failed",
			"session", session.String(), "error", outcome.SummarizeErr)
	}
	return outcome, nil
}

// seedConversation writes the system seed message exactly once per
// conversation. Re-running a turn against the same conversation is a no-op.
func (c *Controller) seedConversation(ctx context.Context, session datatypes.Session) error {
	exists, err := c.store.HasMessage(ctx, session, datatypes.RoleSystem, c.cfg.SeedPrompt)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := history.AppendSystem(ctx, c.store, session, c.cfg.SeedPrompt); err != nil {
		return err
	}
	c.logger.Debug("seeded conversation", "session", session.String())
	return nil
}

// summarize condenses the latest answer into the session summary. Failures
// fall back to a title built from the question; only a failed write is
// reported as an error.
func (c *Controller) summarize(ctx context.Context, session datatypes.Session,
	question string) (string, error) {

	ctx, span := tracer.Start(ctx, "Controller.summarize")
	defer span.End()

	latest, err := c.store.FindLatest(ctx, session, datatypes.RoleAssistant)
	if err != nil {
		return "", &SummarizationError{Err: err}
	}
	if latest == nil {
		return "", &SummarizationError{Err: errors.New("no assistant message to summarize")}
	}

	summary := c.generateSummary(ctx, latest.Content)
	if summary == "" {
		summary = fallbackSummary(question)
	}

	if err := c.store.UpsertSummary(ctx, session, summary); err != nil {
		span.RecordError(err)
		return "", &SummarizationError{Err: err}
	}
	return summary, nil
}

func (c *Controller) generateSummary(ctx context.Context, answer string) string {
	prompt, err := c.registry.Render(prompts.KindSummarize, prompts.SummarizeData{Answer: answer})
	if err != nil {
		c.logger.Warn("failed to render summarize prompt, using fallback", "error", err)
		return ""
	}
	summary, err := c.llm.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		c.logger.Warn("LLM summary generation failed, using fallback", "error", err)
		return ""
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		c.logger.Warn("LLM generated an empty summary, using fallback")
	}
	return summary
}

func fallbackSummary(question string) string {
	summary := fmt.Sprintf("Chat: %s", question)
	if len(summary) > maxFallbackSummaryLength {
		summary = summary[:maxFallbackSummaryLength] + "..."
	}
	return summary
}
