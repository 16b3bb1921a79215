// Package metrics provides Prometheus metrics for the readiness agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	StageTransitions *prometheus.CounterVec
	LLMRequestsTotal *prometheus.CounterVec
	LLMTokensTotal   *prometheus.CounterVec
	ToolExecutions   *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
	ConfidenceScore  *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ella_events_total",
				Help: "Total events dispatched to the stage engine, by event name and stage.",
			},
			[]string{"event", "stage"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ella_events_dropped_total",
				Help: "Events dropped before dispatch, by reason (unknown_project, no_handler).",
			},
			[]string{"reason"},
		),
		StageTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ella_stage_transitions_total",
				Help: "Stage transitions performed, by origin and destination stage.",
			},
			[]string{"from", "to"},
		),
		LLMRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ella_llm_requests_total",
				Help: "LLM chat requests, by outcome (ok, error).",
			},
			[]string{"outcome"},
		),
		LLMTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ella_llm_tokens_total",
				Help: "Token usage reported by the LLM provider, by direction.",
			},
			[]string{"direction"},
		),
		ToolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ella_tool_executions_total",
				Help: "Tool executions during gap research, by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		ConnectedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ella_ws_connected_clients",
				Help: "Currently connected WebSocket clients across all projects.",
			},
		),
		ConfidenceScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ella_planning_confidence",
				Help: "Latest implementation-readiness confidence per project.",
			},
			[]string{"project"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EventsTotal,
		m.EventsDropped,
		m.StageTransitions,
		m.LLMRequestsTotal,
		m.LLMTokensTotal,
		m.ToolExecutions,
		m.ConnectedClients,
		m.ConfidenceScore,
	)

	return m
}

// Handler returns an http.Handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
