// Package metrics exposes engine counters and histograms.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineMetrics captures workflow runs, node effects and rule evaluations.
type EngineMetrics interface {
	IncWorkflowStarted(workflow string)
	IncWorkflowCompleted(workflow, status string)
	ObserveWorkflowDuration(workflow string, durationSeconds float64)
	IncNodeExecuted(nodeType, status string)
	IncRuleEvaluated(status string)
}

// Noop implements EngineMetrics without emitting anything.
type Noop struct{}

func (Noop) IncWorkflowStarted(string)               {}
func (Noop) IncWorkflowCompleted(string, string)     {}
func (Noop) ObserveWorkflowDuration(string, float64) {}
func (Noop) IncNodeExecuted(string, string)          {}
func (Noop) IncRuleEvaluated(string)                 {}

// Prom implements EngineMetrics backed by Prometheus collectors.
type Prom struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	nodes     *prometheus.CounterVec
	rules     *prometheus.CounterVec
}

// NewProm builds the collectors and registers them with reg. A nil reg
// registers with the default registerer.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_started_total",
			Help:      "Workflow executions started by workflow id",
		}, []string{"workflow"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_completed_total",
			Help:      "Workflow executions completed by workflow id and status",
		}, []string{"workflow", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow execution duration seconds by workflow id",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_executed_total",
			Help:      "Workflow nodes executed by node type and status",
		}, []string{"node_type", "status"}),
		rules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_evaluated_total",
			Help:      "Rule evaluations by terminal status",
		}, []string{"status"}),
	}
	reg.MustRegister(p.started, p.completed, p.duration, p.nodes, p.rules)
	return p
}

func (p *Prom) IncWorkflowStarted(workflow string) {
	p.started.WithLabelValues(workflow).Inc()
}

func (p *Prom) IncWorkflowCompleted(workflow, status string) {
	p.completed.WithLabelValues(workflow, status).Inc()
}

func (p *Prom) ObserveWorkflowDuration(workflow string, durationSeconds float64) {
	p.duration.WithLabelValues(workflow).Observe(durationSeconds)
}

func (p *Prom) IncNodeExecuted(nodeType, status string) {
	p.nodes.WithLabelValues(nodeType, status).Inc()
}

func (p *Prom) IncRuleEvaluated(status string) {
	p.rules.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler serving the collectors in g. A nil g
// serves the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
