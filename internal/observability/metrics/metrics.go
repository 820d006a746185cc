package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for call orchestration flows.
type CallMetrics struct {
	callsStarted    *prometheus.CounterVec
	callsEnded      *prometheus.CounterVec
	callDuration    prometheus.Histogram
	activeCalls     prometheus.Gauge
	toolCalls       *prometheus.CounterVec
	transfers       *prometheus.CounterVec
	journalFailures *prometheus.CounterVec
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "becaller",
			Subsystem: "calls",
			Name:      "started_total",
			Help:      "Total calls answered",
		}, []string{"config_source"}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "becaller",
			Subsystem: "calls",
			Name:      "ended_total",
			Help:      "Total calls closed, by terminal status",
		}, []string{"status"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "becaller",
			Subsystem: "calls",
			Name:      "duration_seconds",
			Help:      "Call duration from answer to close",
			Buckets:   []float64{15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "becaller",
			Subsystem: "calls",
			Name:      "active",
			Help:      "Calls currently in progress",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "becaller",
			Subsystem: "tools",
			Name:      "invocations_total",
			Help:      "Tool calls dispatched from the conversational engine",
		}, []string{"tool", "status"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "becaller",
			Subsystem: "transfer",
			Name:      "outcomes_total",
			Help:      "Transfer dial outcomes by department",
		}, []string{"department", "outcome"}),
		journalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "becaller",
			Subsystem: "journal",
			Name:      "write_failures_total",
			Help:      "Call journal writes that failed and were swallowed",
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsStarted, m.callsEnded, m.callDuration, m.activeCalls,
		m.toolCalls, m.transfers, m.journalFailures)
	return m
}

func (m *CallMetrics) ObserveCallStarted(configSource string) {
	if m == nil {
		return
	}
	m.callsStarted.WithLabelValues(configSource).Inc()
	m.activeCalls.Inc()
}

func (m *CallMetrics) ObserveCallEnded(status string, durationSecs float64) {
	if m == nil {
		return
	}
	m.callsEnded.WithLabelValues(status).Inc()
	m.callDuration.Observe(durationSecs)
	m.activeCalls.Dec()
}

func (m *CallMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *CallMetrics) ObserveTransfer(department, outcome string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(department, outcome).Inc()
}

func (m *CallMetrics) ObserveJournalFailure(op string) {
	if m == nil {
		return
	}
	m.journalFailures.WithLabelValues(op).Inc()
}
