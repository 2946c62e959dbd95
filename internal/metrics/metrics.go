// Package metrics exposes Prometheus counters for the handoff engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine metrics on a private registry so tests can
// create collectors without global registration conflicts.
type Collector struct {
	registry *prometheus.Registry

	tasksIngested  prometheus.Counter
	claims         *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	handoffsTotal  prometheus.Counter
	claimsReleased prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tasksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyr_tasks_ingested_total",
			Help: "Total number of tasks created through ingestion",
		}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyr_claims_total",
			Help: "Claim attempts by outcome (accepted, empty, conflict, error)",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyr_submissions_total",
			Help: "Submissions by outcome (completed, rejected, error)",
		}, []string{"outcome"}),
		handoffsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyr_handoffs_total",
			Help: "Total number of successor tasks created by handoff rules",
		}),
		claimsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conveyr_claims_released_total",
			Help: "Total number of expired claims reverted by the reaper",
		}),
	}
	c.registry.MustRegister(c.tasksIngested, c.claims, c.submissions, c.handoffsTotal, c.claimsReleased)
	return c
}

func (c *Collector) TaskIngested()             { c.tasksIngested.Inc() }
func (c *Collector) Claim(outcome string)      { c.claims.WithLabelValues(outcome).Inc() }
func (c *Collector) Submission(outcome string) { c.submissions.WithLabelValues(outcome).Inc() }
func (c *Collector) Handoff()                  { c.handoffsTotal.Inc() }
func (c *Collector) ClaimsReleased(n int) {
	c.claimsReleased.Add(float64(n))
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
