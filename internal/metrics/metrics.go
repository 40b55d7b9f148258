// Package metrics exposes Prometheus collectors for sessions, rate limits,
// completions, moderation proposals and games. Every recording method is
// safe on a nil *Metrics so callers can run without metrics enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "anya"

// Metrics holds the bot's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions     *prometheus.GaugeVec
	sessionsCreated    *prometheus.CounterVec
	sessionRejections  *prometheus.CounterVec
	sessionsReaped     *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	completionRequests *prometheus.CounterVec
	completionLatency  prometheus.Histogram
	proposals          *prometheus.CounterVec
	gamesFinished      *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions by kind.",
		}, []string{"kind"}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created by kind.",
		}, []string{"kind"}),
		sessionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rejections_total",
			Help:      "Session creations refused, by reason.",
		}, []string{"reason"}),
		sessionsReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_reaped_total",
			Help:      "Sessions expired by the reaper, by kind.",
		}, []string{"kind"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Events rejected by a rate window, by scope.",
		}, []string{"scope"}),
		completionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_requests_total",
			Help:      "Completion calls by outcome.",
		}, []string{"outcome"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_proposals_total",
			Help:      "Moderation proposals by final state.",
		}, []string{"state"}),
		gamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games by game and result.",
		}, []string{"game", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activeSessions,
		m.sessionsCreated,
		m.sessionRejections,
		m.sessionsReaped,
		m.rateLimited,
		m.completionRequests,
		m.completionLatency,
		m.proposals,
		m.gamesFinished,
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted(kind string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(kind).Inc()
	m.activeSessions.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionEnded(kind string) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(kind).Dec()
}

func (m *Metrics) SessionRejected(reason string) {
	if m == nil {
		return
	}
	m.sessionRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionReaped(kind string) {
	if m == nil {
		return
	}
	m.sessionsReaped.WithLabelValues(kind).Inc()
}

func (m *Metrics) RateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

func (m *Metrics) CompletionDone(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completionRequests.WithLabelValues(outcome).Inc()
	m.completionLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ProposalResolved(state string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(state).Inc()
}

func (m *Metrics) GameFinished(game, result string) {
	if m == nil {
		return
	}
	m.gamesFinished.WithLabelValues(game, result).Inc()
}
