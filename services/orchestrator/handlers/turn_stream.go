// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides HTTP handlers for the orchestrator service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftline/driftline/services/orchestrator/datatypes"
	"github.com/driftline/driftline/services/orchestrator/history"
	"github.com/driftline/driftline/services/orchestrator/lifecycle"
	"github.com/driftline/driftline/services/orchestrator/observability"
	"github.com/driftline/driftline/services/orchestrator/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// heartbeatInterval is the interval for sending keepalive pings.
	// Set to 15s to stay well under typical LB timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second
)

// =============================================================================
// Handler Interface
// =============================================================================

// TurnStreamHandler handles streaming turn requests over SSE.
type TurnStreamHandler interface {
	// HandleTurnStream processes one turn and streams the answer as SSE
	// events: status, token fragments, sources (grounded turns), done.
	HandleTurnStream(c *gin.Context)
}

// turnStreamHandler runs the turn lifecycle and bridges pipeline output to
// the SSE writer.
type turnStreamHandler struct {
	controller *lifecycle.Controller
	tracer     trace.Tracer
}

var _ TurnStreamHandler = (*turnStreamHandler)(nil)

// NewTurnStreamHandler creates a TurnStreamHandler.
//
// # Inputs
//
//   - controller: Turn lifecycle controller. Must not be nil.
func NewTurnStreamHandler(controller *lifecycle.Controller) TurnStreamHandler {
	if controller == nil {
		panic("NewTurnStreamHandler: controller must not be nil")
	}
	return &turnStreamHandler{
		controller: controller,
		tracer:     otel.Tracer("driftline.orchestrator.handlers"),
	}
}

// =============================================================================
// Streaming Turn Endpoint
// =============================================================================

// HandleTurnStream handles POST /v1/turns/stream.
//
// # Description
//
// Validates the request, persists the question, runs the generation
// pipeline, and streams the filtered answer token-by-token as SSE events.
// Grounded turns additionally emit a sources event before done. A
// heartbeat goroutine sends keepalive comments so load balancers do not
// drop slow streams.
//
// # Error Handling
//
// Errors after the stream has started are reported as SSE error events
// with sanitized messages; internal details stay in the logs. A client
// disconnect mid-stream abandons the turn without an error event: the
// connection is already gone.
func (h *turnStreamHandler) HandleTurnStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointTurnStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleTurnStream")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	// Step 1: Parse and validate the request.
	var req datatypes.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse turn request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req.EnsureDefaults()

	span.SetAttributes(
		attribute.String("turn.request_id", req.RequestID),
		attribute.String("turn.tenant", req.Tenant),
		attribute.String("turn.conversation", req.Conversation),
	)

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request validation failed")
		slog.Error("Turn request validation failed",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	// Step 2: Set up SSE.
	SetSSEHeaders(c.Writer)
	sseWriter, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE not supported")
		slog.Error("Failed to create SSE writer",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	// Step 3: Emit status event.
	if err := sseWriter.WriteStatus("Generating response..."); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write status event",
			"error", err,
			"requestId", req.RequestID,
		)
		return
	}

	// Step 4: Start heartbeat goroutine to prevent connection timeouts.
	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(ctx, sseWriter, endpoint, heartbeatDone)

	// Step 5: Run the turn, streaming tokens as they arrive.
	var tokenCount int
	firstTokenTime := time.Time{}
	emit := func(fragment string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := sseWriter.WriteToken(fragment); err != nil {
			return err
		}
		tokenCount++
		if tokenCount == 1 {
			firstTokenTime = time.Now()
		}
		return nil
	}

	outcome, runErr := h.controller.RunTurn(ctx, &req, emit)

	// Stop heartbeat.
	close(heartbeatDone)

	span.SetAttributes(attribute.Int("stream.token_count", tokenCount))

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "turn failed")
		slog.Error("Turn failed",
			"error", runErr,
			"requestId", req.RequestID,
			"tokenCount", tokenCount,
		)

		msg, errCode := sanitizeTurnError(runErr)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, errCode)
			if errCode == observability.ErrorCodeClientDisconnect {
				m.RecordClientDisconnect(endpoint)
			}
		}
		// The connection is gone on a disconnect; writing would fail.
		if errCode != observability.ErrorCodeClientDisconnect {
			if werr := sseWriter.WriteError(msg); werr != nil {
				slog.Debug("Failed to write error event", "error", werr)
			}
		}
		return
	}

	if !firstTokenTime.IsZero() {
		ttft := firstTokenTime.Sub(startTime).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_token_seconds", ttft))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstToken(endpoint, ttft)
		}
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordMode(turnMode(outcome.Result))
		if outcome.Result != nil && outcome.Result.Detail != nil {
			m.RecordTokens(tokenCount, outcome.Result.Detail.Model)
		}
		if outcome.SummarizeErr != nil {
			m.RecordSummaryFailure()
		}
	}

	// Step 6: Emit sources for grounded turns.
	if outcome.Result != nil && len(outcome.Result.Sources) > 0 {
		if err := sseWriter.WriteSources(outcome.Result.Sources); err != nil {
			span.RecordError(err)
			slog.Error("Failed to write sources event",
				"error", err,
				"requestId", req.RequestID,
			)
			return
		}
	}

	// Step 7: Emit done event.
	if err := sseWriter.WriteDone(req.Session()); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write done event",
			"error", err,
			"requestId", req.RequestID,
		)
		return
	}

	success = true
	slog.Info("Turn completed",
		"requestId", req.RequestID,
		"tenant", req.Tenant,
		"conversation", req.Conversation,
		"mode", turnMode(outcome.Result),
		"tokenCount", tokenCount,
	)
}

// runHeartbeat sends keepalive pings until the stream finishes or the
// client disconnects.
func (h *turnStreamHandler) runHeartbeat(
	ctx context.Context,
	writer SSEWriter,
	endpoint observability.Endpoint,
	done <-chan struct{},
) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("Failed to write keepalive", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}

// sanitizeTurnError maps internal turn errors to client-safe messages and
// metric codes. Internal details never reach the client.
func sanitizeTurnError(err error) (string, observability.ErrorCode) {
	switch {
	case pipeline.IsAbandoned(err):
		return "", observability.ErrorCodeClientDisconnect
	case history.IsUnavailable(err):
		return "conversation history unavailable", observability.ErrorCodeHistoryError
	case pipeline.IsGenerationError(err):
		return "generation failed", observability.ErrorCodeLLMError
	default:
		return "internal error", observability.ErrorCodeInternal
	}
}

// turnMode labels a completed turn for metrics and logs.
func turnMode(result *pipeline.Result) string {
	if result == nil {
		return "unknown"
	}
	if result.FailedOpen {
		return "fail_open"
	}
	return string(result.Mode)
}
