// Package metrics records group chat, agent and HTTP metrics with Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Selection sources reported by ObserveSelection.
const (
	SourceModel    = "model"
	SourceHandOff  = "handoff"
	SourceFallback = "fallback"
)

// Termination causes reported by ObserveTermination.
const (
	CausePredicate = "predicate"
	CauseCap       = "iteration_cap"
	CauseModel     = "model"
)

// Recorder receives the measurements taken while serving chat completions.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveSelection(agent, source string)
	ObserveTermination(cause string)
	ObserveTurn(agent string, tokens int, duration time.Duration, err error)
	ObserveCompletion(iterations int, duration time.Duration, err error)
	ObserveHTTP(method, route string, status int, duration time.Duration)
}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	selectionsTotal    *prometheus.CounterVec
	terminationsTotal  *prometheus.CounterVec
	turnsTotal         *prometheus.CounterVec
	turnTokensTotal    *prometheus.CounterVec
	turnDuration       *prometheus.HistogramVec
	completionsTotal   *prometheus.CounterVec
	completionTurns    prometheus.Histogram
	completionDuration prometheus.Histogram
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder registered with reg. A nil reg
// registers with prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		selectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupchat_selections_total",
				Help: "Total number of agent selections by agent and selection source",
			},
			[]string{"agent", "source"},
		),
		terminationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupchat_terminations_total",
				Help: "Total number of group chat terminations by cause",
			},
			[]string{"cause"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_turns_total",
				Help: "Total number of agent turns by agent and status",
			},
			[]string{"agent", "status"},
		),
		turnTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tokens_total",
				Help: "Total number of model tokens used by agent turns",
			},
			[]string{"agent"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_turn_duration_seconds",
				Help:    "Duration of agent turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		completionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_completions_total",
				Help: "Total number of chat completions by status",
			},
			[]string{"status"},
		),
		completionTurns: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_completion_turns",
				Help:    "Number of agent turns per chat completion",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
		completionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_completion_duration_seconds",
				Help:    "Duration of chat completions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveSelection counts one agent selection.
func (p *PrometheusRecorder) ObserveSelection(agent, source string) {
	p.selectionsTotal.WithLabelValues(agent, source).Inc()
}

// ObserveTermination counts one termination decision that stopped the loop.
func (p *PrometheusRecorder) ObserveTermination(cause string) {
	p.terminationsTotal.WithLabelValues(cause).Inc()
}

// ObserveTurn records one agent turn.
func (p *PrometheusRecorder) ObserveTurn(agent string, tokens int, duration time.Duration, err error) {
	p.turnsTotal.WithLabelValues(agent, status(err)).Inc()
	if err == nil {
		p.turnTokensTotal.WithLabelValues(agent).Add(float64(tokens))
	}
	p.turnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// ObserveCompletion records one group chat run.
func (p *PrometheusRecorder) ObserveCompletion(iterations int, duration time.Duration, err error) {
	p.completionsTotal.WithLabelValues(status(err)).Inc()
	p.completionTurns.Observe(float64(iterations))
	p.completionDuration.Observe(duration.Seconds())
}

// ObserveHTTP records one served HTTP request.
func (p *PrometheusRecorder) ObserveHTTP(method, route string, code int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// NoOpRecorder discards all measurements.
type NoOpRecorder struct{}

// ObserveSelection implements Recorder.
func (NoOpRecorder) ObserveSelection(string, string) {}

// ObserveTermination implements Recorder.
func (NoOpRecorder) ObserveTermination(string) {}

// ObserveTurn implements Recorder.
func (NoOpRecorder) ObserveTurn(string, int, time.Duration, error) {}

// ObserveCompletion implements Recorder.
func (NoOpRecorder) ObserveCompletion(int, time.Duration, error) {}

// ObserveHTTP implements Recorder.
func (NoOpRecorder) ObserveHTTP(string, string, int, time.Duration) {}

// OrNoOp returns r, or a NoOpRecorder when r is nil.
func OrNoOp(r Recorder) Recorder {
	if r == nil {
		return NoOpRecorder{}
	}
	return r
}
