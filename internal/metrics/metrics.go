// Package metrics exposes Prometheus counters for the conversation core.
//
// A Metrics value is constructed once by the application entry point and passed to the
// components that record into it. Components accept the Recorder interface so tests and
// callers without metrics can use NoOp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "isitstolen"

// Recorder is implemented by anything that records conversation metrics.
type Recorder interface {
	MessageRouted(state string)
	StateTransition(from, to string)
	FlowStarted(flowID string)
	FlowStep(flowID, stepID string)
	FlowCompleted(flowID string)
	HandlerError(kind string)
	ItemReported(category string)
	ItemChecked(category string, matches int)
	RateLimited()
	DuplicateDropped()
}

// NoOp discards every observation.
type NoOp struct{}

func (NoOp) MessageRouted(string) {}
func (NoOp) StateTransition(string, string) {}
func (NoOp) FlowStarted(string) {}
func (NoOp) FlowStep(string, string) {}
func (NoOp) FlowCompleted(string) {}
func (NoOp) HandlerError(string) {}
func (NoOp) ItemReported(string) {}
func (NoOp) ItemChecked(string, int) {}
func (NoOp) RateLimited() {}
func (NoOp) DuplicateDropped() {}

// Metrics is the Prometheus-backed Recorder. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	messagesRouted   *prometheus.CounterVec // by state after routing
	stateTransitions *prometheus.CounterVec // by from, to
	flowsStarted     *prometheus.CounterVec // by flow_id
	flowSteps        *prometheus.CounterVec // by flow_id, step
	flowsCompleted   *prometheus.CounterVec // by flow_id
	handlerErrors    *prometheus.CounterVec // by kind
	itemsReported    *prometheus.CounterVec // by category
	itemsChecked     *prometheus.CounterVec // by category, result
	rateLimited      prometheus.Counter
	duplicates       prometheus.Counter
}

var _ Recorder = (*Metrics)(nil)
var _ Recorder = NoOp{}

// New creates a Metrics value with its own registry, including Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		messagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Inbound messages routed, by resulting conversation state",
		}, []string{"state"}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Conversation state transitions",
		}, []string{"from", "to"}),
		flowsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "started_total",
			Help:      "Configuration-driven flows started",
		}, []string{"flow_id"}),
		flowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "steps_total",
			Help:      "Flow inputs processed, by step",
		}, []string{"flow_id", "step"}),
		flowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "completed_total",
			Help:      "Configuration-driven flows completed",
		}, []string{"flow_id"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "handler_errors_total",
			Help:      "Errors translated for users, by kind",
		}, []string{"kind"}),
		itemsReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "items",
			Name:      "reported_total",
			Help:      "Stolen items reported",
		}, []string{"category"}),
		itemsChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "items",
			Name:      "checked_total",
			Help:      "Stolen item checks, by whether anything matched",
		}, []string{"category", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "rate_limited_total",
			Help:      "Inbound messages rejected by the rate limiter",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "duplicates_dropped_total",
			Help:      "Inbound messages dropped as redeliveries",
		}),
	}

	reg.MustRegister(
		m.messagesRouted,
		m.stateTransitions,
		m.flowsStarted,
		m.flowSteps,
		m.flowsCompleted,
		m.handlerErrors,
		m.itemsReported,
		m.itemsChecked,
		m.rateLimited,
		m.duplicates,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) MessageRouted(state string) {
	m.messagesRouted.WithLabelValues(state).Inc()
}

func (m *Metrics) StateTransition(from, to string) {
	m.stateTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) FlowStarted(flowID string) {
	m.flowsStarted.WithLabelValues(flowID).Inc()
}

func (m *Metrics) FlowStep(flowID, stepID string) {
	m.flowSteps.WithLabelValues(flowID, stepID).Inc()
}

func (m *Metrics) FlowCompleted(flowID string) {
	m.flowsCompleted.WithLabelValues(flowID).Inc()
}

func (m *Metrics) HandlerError(kind string) {
	m.handlerErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ItemReported(category string) {
	m.itemsReported.WithLabelValues(category).Inc()
}

func (m *Metrics) ItemChecked(category string, matches int) {
	result := "no_match"
	if matches > 0 {
		result = "match"
	}
	m.itemsChecked.WithLabelValues(category, result).Inc()
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

func (m *Metrics) DuplicateDropped() {
	m.duplicates.Inc()
}
