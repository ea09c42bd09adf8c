package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contentgate"

// #region collector
// Collector holds the engine's Prometheus collectors.
//
//   - contentgate_decisions_total: terminal decisions by status and reason
//   - contentgate_gate_verdicts_total: gate verdicts by gate and verdict
//   - contentgate_repair_passes: repair passes per repaired job
//   - contentgate_job_duration_seconds: wall time of a job
type Collector struct {
	registry     *prometheus.Registry
	decisions    *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	repairPasses prometheus.Histogram
	jobDuration  prometheus.Histogram
}

// NewCollector creates the collectors and registers them on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Publish decisions by status and reason code",
			},
			[]string{"status", "reason"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_verdicts_total",
				Help:      "Gate verdicts by gate and verdict",
			},
			[]string{"gate", "verdict"},
		),
		repairPasses: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "repair_passes",
				Help:      "Repair passes executed per repaired job",
				Buckets:   []float64{0, 1, 2, 3},
			},
		),
		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time of one content refresh job",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
		),
	}
	c.registry.MustRegister(c.decisions, c.verdicts, c.repairPasses, c.jobDuration)
	return c
}

// #endregion collector

// #region record
// Decision counts one terminal decision.
func (c *Collector) Decision(status, reason string, took time.Duration) {
	c.decisions.WithLabelValues(status, reason).Inc()
	c.jobDuration.Observe(took.Seconds())
}

// Verdict counts one gate verdict.
func (c *Collector) Verdict(gate, verdict string) {
	c.verdicts.WithLabelValues(gate, verdict).Inc()
}

// RepairPasses records how many passes a repaired job used.
func (c *Collector) RepairPasses(n int) {
	c.repairPasses.Observe(float64(n))
}

// #endregion record

// #region handler
// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// #endregion handler
