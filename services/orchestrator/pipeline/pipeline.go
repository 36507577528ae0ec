// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

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
	"github.com/driftline/driftline/services/orchestrator/prompts"
	"github.com/driftline/driftline/services/orchestrator/retrieval"
)

var tracer = otel.Tracer("driftline.orchestrator.pipeline")

// Mode names which chain produced the answer.
type Mode string

const (
	ModeGrounded Mode = "grounded"
	ModeDirect   Mode = "direct"
)

// EmitFunc receives each cleaned answer fragment in order. Returning a
// non-nil error marks the consumer as gone; the pipeline stops pulling.
type EmitFunc func(fragment string) error

// Config tunes one pipeline instance.
type Config struct {
	// MaxHistoryMessages bounds the history suffix loaded per turn.
	MaxHistoryMessages int

	// Persona overrides the direct-chat system prompt when set.
	Persona string

	// Temperature is passed to the backend and recorded on the answer's
	// model detail.
	Temperature float32

	// Provider and Model label the answer's model detail.
	Provider string
	Model    string
}

// EnsureDefaults fills unset fields.
func (c *Config) EnsureDefaults() {
	if c.MaxHistoryMessages <= 0 {
		c.MaxHistoryMessages = 20
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
}

// Result is the outcome of one completed or failed turn.
type Result struct {
	// Answer is the full filtered answer text.
	Answer string

	// Mode is which chain ran.
	Mode Mode

	// Sources lists the grounding documents, empty for direct turns.
	Sources []datatypes.SourceInfo

	// FailedOpen is true when the retrieval backend was unreachable and
	// the turn fell back to direct generation.
	FailedOpen bool

	// FinalState is the machine's terminal state.
	FinalState State

	// Detail labels the generation for the history record.
	Detail *datatypes.ModelDetail
}

// Pipeline runs turns. Safe for concurrent use; per-turn state lives on the
// stack of Run.
type Pipeline struct {
	llm      llm.LLMClient
	gate     *retrieval.Gate
	searcher retrieval.Searcher
	store    history.Store
	registry *prompts.Registry
	cfg      Config
	logger   *slog.Logger
}

// New assembles a pipeline.
func New(llmClient llm.LLMClient, gate *retrieval.Gate, searcher retrieval.Searcher,
	store history.Store, registry *prompts.Registry, cfg Config, logger *slog.Logger) *Pipeline {
	cfg.EnsureDefaults()
	return &Pipeline{
		llm:      llmClient,
		gate:     gate,
		searcher: searcher,
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// =============================================================================
// Turn Execution
// =============================================================================

// Run executes one turn.
//
// # Description
//
// Loads the bounded history suffix, asks the gate whether the corpus has
// context for the question, then runs either the grounded chain
// (contextualize, retrieve, answer over documents) or the direct chain
// (answer from history alone). The answer streams through the stop-token
// filter to emit as it is generated.
//
// # Inputs
//
//   - ctx: Cancels the turn.
//   - session: Tenant and conversation the turn belongs to.
//   - question: The user's message, already persisted by the caller.
//   - emit: Receives cleaned fragments; a non-nil return abandons the turn.
//
// # Outputs
//
//   - *Result: Non-nil even on failure; FinalState says which.
//   - error: HistoryUnavailable before generation, GenerationError during
//     it, AbandonedError when the consumer went away, or nil.
//
// # Limitations
//
//   - The question must already be validated and size-bounded.
func (p *Pipeline) Run(ctx context.Context, session datatypes.Session, question string,
	emit EmitFunc) (*Result, error) {

	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("pipeline.session", session.String()))

	m := newMachine()
	result := &Result{
		Detail: &datatypes.ModelDetail{
			Provider:    p.cfg.Provider,
			Model:       p.cfg.Model,
			Temperature: p.cfg.Temperature,
		},
	}

	fail := func(err error) (*Result, error) {
		_ = m.transition(StateFailed)
		result.FinalState = m.state
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if err := m.transition(StateDeciding); err != nil {
		return fail(err)
	}

	// History is load-bearing for both chains; without it the model could
	// contradict the transcript, so an unreachable store fails the turn.
	transcript, err := p.store.LastN(ctx, session, p.cfg.MaxHistoryMessages)
	if err != nil {
		p.logger.Error("history unavailable before generation",
			"session", session.String(), "error", err)
		return fail(err)
	}
	// The caller persists the question before running the pipeline, so the
	// transcript's tail is the current question. Drop it; it is re-added
	// as the final wire message.
	if n := len(transcript); n > 0 &&
		transcript[n-1].Role == datatypes.RoleHuman &&
		transcript[n-1].Content == question {
		transcript = transcript[:n-1]
	}

	decision, gateErr := p.gate.Decide(ctx, session, question)
	if gateErr != nil && !decision.FailedOpen {
		return fail(gateErr)
	}
	result.FailedOpen = decision.FailedOpen
	span.SetAttributes(
		attribute.Bool("pipeline.grounded", decision.Grounded),
		attribute.Bool("pipeline.failed_open", decision.FailedOpen),
	)

	var messages []datatypes.Message
	if decision.Grounded {
		if err := m.transition(StateGrounded); err != nil {
			return fail(err)
		}
		result.Mode = ModeGrounded
		messages, err = p.buildGroundedMessages(ctx, session, question, transcript, decision.Chunks, result)
		if err != nil {
			return fail(err)
		}
	} else {
		if err := m.transition(StateDirect); err != nil {
			return fail(err)
		}
		result.Mode = ModeDirect
		messages, err = p.buildDirectMessages(question, transcript)
		if err != nil {
			return fail(err)
		}
	}

	if err := m.transition(StateStreaming); err != nil {
		return fail(err)
	}

	answer, err := p.stream(ctx, messages, emit)
	result.Answer = answer
	if err != nil {
		return fail(err)
	}

	if err := m.transition(StateComplete); err != nil {
		return fail(err)
	}
	result.FinalState = m.state
	span.SetAttributes(attribute.Int("pipeline.answer_length", len(answer)))
	return result, nil
}

// =============================================================================
// Chains
// =============================================================================

// buildGroundedMessages assembles the grounded chain's message list.
//
// When the turn has history, the question is first rewritten into a
// standalone form and the corpus is re-searched with it; the gate's probe
// chunks are kept as a fallback if that second search fails.
func (p *Pipeline) buildGroundedMessages(ctx context.Context, session datatypes.Session,
	question string, transcript []datatypes.TurnMessage, probeChunks []retrieval.Chunk,
	result *Result) ([]datatypes.Message, error) {

	chunks := probeChunks

	hasDialogue := false
	for _, msg := range transcript {
		if msg.Role == datatypes.RoleHuman || msg.Role == datatypes.RoleAssistant {
			hasDialogue = true
			break
		}
	}

	if hasDialogue {
		standalone, err := p.contextualize(ctx, question, transcript)
		if err != nil {
			return nil, err
		}
		if standalone != "" && standalone != question {
			better, err := p.searcher.Search(ctx, session, standalone, retrieval.DefaultProbeLimit)
			if err != nil {
				if !retrieval.IsBackendUnavailable(err) {
					return nil, &GenerationError{Stage: "retrieve", Err: err}
				}
				p.logger.Warn("re-search with standalone question failed, reusing probe chunks",
					"session", session.String(), "error", err)
			} else if len(better) > 0 {
				chunks = better
			}
		}
	}

	for _, c := range chunks {
		result.Sources = append(result.Sources, c.SourceInfo())
	}

	systemPrompt, err := p.registry.Render(prompts.KindQA, prompts.QAData{
		Context: formatContext(chunks),
	})
	if err != nil {
		return nil, &GenerationError{Stage: "compose", Err: err}
	}

	return assembleMessages(systemPrompt, transcript, question), nil
}

func (p *Pipeline) buildDirectMessages(question string,
	transcript []datatypes.TurnMessage) ([]datatypes.Message, error) {

	systemPrompt, err := p.registry.Render(prompts.KindDirectChat, prompts.DirectChatData{
		Persona: p.cfg.Persona,
	})
	if err != nil {
		return nil, &GenerationError{Stage: "compose", Err: err}
	}
	return assembleMessages(systemPrompt, transcript, question), nil
}

// contextualize rewrites the question into a standalone form. The rewrite
// instruction is the system message; the history and the question reach the
// model as role-structured chat messages.
func (p *Pipeline) contextualize(ctx context.Context, question string,
	transcript []datatypes.TurnMessage) (string, error) {

	ctx, span := tracer.Start(ctx, "Pipeline.contextualize")
	defer span.End()

	instruction, err := p.registry.Render(prompts.KindContextualize, nil)
	if err != nil {
		return "", &GenerationError{Stage: "compose", Err: err}
	}

	standalone, err := p.llm.Chat(ctx, assembleMessages(instruction, transcript, question),
		p.generationParams())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &GenerationError{Stage: "contextualize", Err: err}
	}
	return strings.TrimSpace(standalone), nil
}

// formatContext renders retrieved chunks into the QA prompt's context block.
func formatContext(chunks []retrieval.Chunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s]\n%s", c.Source, c.Content)
	}
	return sb.String()
}

// assembleMessages builds the wire message list: system prompt, then the
// transcript converted to wire roles, then the current question.
func assembleMessages(systemPrompt string, transcript []datatypes.TurnMessage,
	question string) []datatypes.Message {

	messages := make([]datatypes.Message, 0, len(transcript)+2)
	messages = append(messages, datatypes.Message{Role: "system", Content: systemPrompt})
	for _, msg := range transcript {
		wireRole := ""
		switch msg.Role {
		case datatypes.RoleSystem:
			// Seeded system messages are superseded by the chain's own
			// system prompt.
			continue
		case datatypes.RoleHuman:
			wireRole = "user"
		case datatypes.RoleAssistant:
			wireRole = "assistant"
		default:
			continue
		}
		messages = append(messages, datatypes.Message{Role: wireRole, Content: msg.Content})
	}
	messages = append(messages, datatypes.Message{Role: "user", Content: question})
	return messages
}

// =============================================================================
// Streaming
// =============================================================================

// abandonSentinel separates consumer-gone from backend failures inside the
// stream callback.
type abandonSentinel struct {
	cause error
}

func (a *abandonSentinel) Error() string {
	return a.cause.Error()
}

func (p *Pipeline) stream(ctx context.Context, messages []datatypes.Message,
	emit EmitFunc) (string, error) {

	ctx, span := tracer.Start(ctx, "Pipeline.stream")
	defer span.End()

	var answer strings.Builder
	var filter StopTokenFilter

	callback := func(event llm.StreamEvent) error {
		if event.Type != llm.StreamEventToken {
			return nil
		}
		cleaned, ok := filter.Apply(event.Content)
		if !ok {
			return nil
		}
		answer.WriteString(cleaned)
		if err := emit(cleaned); err != nil {
			return &abandonSentinel{cause: err}
		}
		return nil
	}

	err := p.llm.ChatStream(ctx, messages, p.generationParams(), callback)
	if err != nil {
		var sentinel *abandonSentinel
		if errors.As(err, &sentinel) {
			return answer.String(), &AbandonedError{Err: sentinel.cause}
		}
		return answer.String(), &GenerationError{Stage: "stream", Err: err}
	}
	return answer.String(), nil
}

func (p *Pipeline) generationParams() llm.GenerationParams {
	temp := p.cfg.Temperature
	return llm.GenerationParams{
		Temperature: &temp,
		Stop:        []string{StopToken},
	}
}
