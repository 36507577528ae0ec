// Copyright (C) 2026 Driftline (dev@driftline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the streaming turn endpoint: request counters by outcome,
// routing decisions (grounded vs direct, fail-open), token throughput,
// latency histograms, active stream gauges, and summary hook failures.
//
// # Integration
//
// Exposed via the /metrics endpoint. All metric operations are thread-safe
// via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "driftline"

const turnsSubsystem = "turns"

// TurnMetrics holds all Prometheus metrics for streaming turn operations.
//
// # Fields
//
//   - RequestsTotal: Counter of turn requests by endpoint and status.
//   - ModeTotal: Counter of routing decisions (grounded, direct, fail-open).
//   - TokensTotal: Counter of streamed output tokens by model.
//   - TimeToFirstTokenSeconds: Histogram of time to first token.
//   - StreamDurationSeconds: Histogram of total stream duration.
//   - ActiveStreams: Gauge of currently active streams.
//   - ErrorsTotal: Counter of errors by type and endpoint.
//   - KeepAlivesTotal: Counter of keepalive pings sent.
//   - ClientDisconnectsTotal: Counter of client disconnects mid-stream.
//   - SummaryFailuresTotal: Counter of best-effort summary hook failures.
type TurnMetrics struct {
	// RequestsTotal counts turn requests by endpoint and status.
	// Labels: endpoint (turn_stream), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ModeTotal counts routing decisions.
	// Labels: mode (grounded, direct, fail_open)
	ModeTotal *prometheus.CounterVec

	// TokensTotal counts streamed output tokens by model.
	// Labels: model
	TokensTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures latency to first token.
	// Labels: endpoint
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: endpoint, status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active streaming connections.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by type and endpoint.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive pings sent.
	// Labels: endpoint
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts client disconnections during streaming.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec

	// SummaryFailuresTotal counts summary hook failures. The turn itself
	// still succeeded.
	SummaryFailuresTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of TurnMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *TurnMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Call once at application
// startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *TurnMetrics {
	DefaultMetrics = &TurnMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "requests_total",
				Help:      "Total number of turn requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ModeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "mode_total",
				Help:      "Total routing decisions by mode",
			},
			[]string{"mode"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "tokens_total",
				Help:      "Total streamed output tokens by model",
			},
			[]string{"model"},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "errors_total",
				Help:      "Total turn errors by type and endpoint",
			},
			[]string{"endpoint", "error_code"},
		),

		KeepAlivesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive pings sent",
			},
			[]string{"endpoint"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),

		SummaryFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnsSubsystem,
				Name:      "summary_failures_total",
				Help:      "Total summary hook failures after successful turns",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeLLMError indicates LLM backend failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeHistoryError indicates history store failure.
	ErrorCodeHistoryError ErrorCode = "history_error"

	// ErrorCodeRetrievalError indicates vector search failure.
	ErrorCodeRetrievalError ErrorCode = "retrieval_error"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents a streaming endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointTurnStream is the streaming turn endpoint.
	EndpointTurnStream Endpoint = "turn_stream"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed turn request.
func (m *TurnMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordMode records a routing decision.
func (m *TurnMetrics) RecordMode(mode string) {
	m.ModeTotal.WithLabelValues(mode).Inc()
}

// RecordTokens records streamed output token count for a model.
func (m *TurnMetrics) RecordTokens(outputTokens int, model string) {
	m.TokensTotal.WithLabelValues(model).Add(float64(outputTokens))
}

// RecordError records a turn error.
func (m *TurnMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *TurnMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *TurnMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordTimeToFirstToken records the time to first token latency.
func (m *TurnMetrics) RecordTimeToFirstToken(endpoint Endpoint, seconds float64) {
	m.TimeToFirstTokenSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordStreamDuration records the total stream duration.
func (m *TurnMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

// RecordKeepAlive increments the keepalive counter.
func (m *TurnMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *TurnMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordSummaryFailure increments the summary hook failure counter.
func (m *TurnMetrics) RecordSummaryFailure() {
	m.SummaryFailuresTotal.Inc()
}
