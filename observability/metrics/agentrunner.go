package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AgentRunnerMetrics instruments the decide/observe dispatcher: how long
// deciders take, and how often a tick's worker pool had no room for a
// decider or a decided action could not be queued.
type AgentRunnerMetrics struct {
	decideLatency  prometheus.Histogram
	decideErrors   *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	dispatchDropped prometheus.Counter
}

var (
	agentRunnerOnce     sync.Once
	agentRunnerRegistry *AgentRunnerMetrics
)

func AgentRunner() *AgentRunnerMetrics {
	agentRunnerOnce.Do(func() {
		agentRunnerRegistry = &AgentRunnerMetrics{
			decideLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "agentrunner_decide_latency_seconds",
				Help:    "Time spent in a single Decider.Decide call.",
				Buckets: prometheus.DefBuckets,
			}),
			decideErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "agentrunner_decide_errors_total",
				Help: "Decider.Decide calls that returned an error, by reason.",
			}, []string{"reason"}),
			decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "agentrunner_decisions_total",
				Help: "Decisions produced, partitioned by outcome.",
			}, []string{"outcome"}),
			dispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "agentrunner_dispatch_dropped_total",
				Help: "Ticks where the worker pool had no free slot for a registered agent.",
			}),
		}
		prometheus.MustRegister(
			agentRunnerRegistry.decideLatency,
			agentRunnerRegistry.decideErrors,
			agentRunnerRegistry.decisionsTotal,
			agentRunnerRegistry.dispatchDropped,
		)
	})
	return agentRunnerRegistry
}

func (m *AgentRunnerMetrics) ObserveDecideLatencySeconds(seconds float64) {
	if m == nil {
		return
	}
	m.decideLatency.Observe(seconds)
}

func (m *AgentRunnerMetrics) IncDecideError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.decideErrors.WithLabelValues(reason).Inc()
}

func (m *AgentRunnerMetrics) IncDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}

func (m *AgentRunnerMetrics) IncDispatchDropped() {
	if m == nil {
		return
	}
	m.dispatchDropped.Inc()
}
