package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics exposes counters/histograms for the poll loop and reply flow.
type AgentMetrics struct {
	ticksTotal        *prometheus.CounterVec
	eligibleTotal     prometheus.Counter
	attemptsTotal     *prometheus.CounterVec
	stageFailures     *prometheus.CounterVec
	repliesTotal      *prometheus.CounterVec
	generationLatency prometheus.Histogram
	inFlight          prometheus.Gauge
}

func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	m := &AgentMetrics{
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyreply",
			Subsystem: "poll",
			Name:      "ticks_total",
			Help:      "Poll ticks by listing status",
		}, []string{"status"}),
		eligibleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skyreply",
			Subsystem: "poll",
			Name:      "eligible_conversations_total",
			Help:      "Conversations found waiting for a reply",
		}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyreply",
			Subsystem: "conversation",
			Name:      "attempts_total",
			Help:      "Processing attempts by outcome",
		}, []string{"outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyreply",
			Subsystem: "conversation",
			Name:      "stage_failures_total",
			Help:      "Processing attempts aborted, by failing stage",
		}, []string{"stage"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyreply",
			Subsystem: "conversation",
			Name:      "reply_units_total",
			Help:      "Outbound reply units by send status",
		}, []string{"status"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skyreply",
			Subsystem: "llm",
			Name:      "generation_latency_seconds",
			Help:      "Latency of model generation calls",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skyreply",
			Subsystem: "conversation",
			Name:      "in_flight",
			Help:      "Conversations with a processing attempt in flight",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ticksTotal, m.eligibleTotal, m.attemptsTotal, m.stageFailures, m.repliesTotal, m.generationLatency, m.inFlight)
	return m
}

func (m *AgentMetrics) ObserveTick(status string, eligible int) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(status).Inc()
	m.eligibleTotal.Add(float64(eligible))
}

func (m *AgentMetrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *AgentMetrics) ObserveStageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *AgentMetrics) ObserveReplyUnit(sent bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !sent {
		status = "failed"
	}
	m.repliesTotal.WithLabelValues(status).Inc()
}

func (m *AgentMetrics) ObserveGenerationLatency(seconds float64) {
	if m == nil {
		return
	}
	m.generationLatency.Observe(seconds)
}

// IncInFlight marks one more conversation attempt holding its guard.
func (m *AgentMetrics) IncInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *AgentMetrics) DecInFlight() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
