// Package metrics exposes allocation run statistics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arnavshah/role-allocator-go/pkg/allocator"
	"github.com/arnavshah/role-allocator-go/pkg/models"
)

// Collector records allocation metrics
type Collector struct {
	runs               *prometheus.CounterVec
	trialDuration      prometheus.Histogram
	runDuration        prometheus.Histogram
	maxDissatisfaction prometheus.Gauge
	satisfaction       prometheus.Gauge
	relaxed            prometheus.Counter
	unassignedRoles    prometheus.Gauge
}

// New creates a Collector and registers it with reg.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "allocator" if empty)
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "allocator"
	}

	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Allocation runs by outcome (success, failure, cancelled).",
		}, []string{"result"}),
		trialDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_duration_seconds",
			Help:      "Duration of a single allocation trial in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full allocation run in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		}),
		maxDissatisfaction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_participant_dissatisfaction",
			Help:      "Worst per-participant average cost of the last run.",
		}),
		satisfaction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "satisfaction_score",
			Help:      "Mean preference rank over the assignments of the last run.",
		}),
		relaxed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relaxed_assignments_total",
			Help:      "Assignments that gave a participant a role they already held.",
		}),
		unassignedRoles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unassigned_roles",
			Help:      "Roles left below capacity by the last run.",
		}),
	}
	reg.MustRegister(c.runs, c.trialDuration, c.runDuration, c.maxDissatisfaction,
		c.satisfaction, c.relaxed, c.unassignedRoles)
	return c
}

// ObserveTrial has the shape of allocator.Options.OnTrial
func (c *Collector) ObserveTrial(st allocator.TrialStats) {
	if c == nil {
		return
	}
	c.trialDuration.Observe(st.Duration.Seconds())
}

// ObserveRun records the chosen result of a run. res may be nil on failure.
func (c *Collector) ObserveRun(res *models.AllocationResult, took time.Duration, err error) {
	if c == nil {
		return
	}
	c.runDuration.Observe(took.Seconds())
	switch {
	case res == nil:
		c.runs.WithLabelValues("failure").Inc()
		return
	case err != nil:
		c.runs.WithLabelValues("cancelled").Inc()
	default:
		c.runs.WithLabelValues("success").Inc()
	}
	c.maxDissatisfaction.Set(res.MaxParticipantDissatisfaction)
	c.satisfaction.Set(res.SatisfactionScore)
	c.relaxed.Add(float64(res.RelaxedCount))
	c.unassignedRoles.Set(float64(len(res.UnassignedRoleIDs)))
}
