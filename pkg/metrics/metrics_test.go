package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/arnavshah/role-allocator-go/pkg/allocator"
	"github.com/arnavshah/role-allocator-go/pkg/models"
)

func TestCollector_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "test")

	c.ObserveRun(&models.AllocationResult{
		MaxParticipantDissatisfaction: 3,
		SatisfactionScore:             5,
		RelaxedCount:                  2,
		UnassignedRoleIDs:             []string{"x"},
	}, time.Millisecond, nil)
	c.ObserveRun(&models.AllocationResult{MaxParticipantDissatisfaction: 1}, time.Millisecond, context.Canceled)
	c.ObserveRun(nil, time.Millisecond, errors.New("bad roles"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.maxDissatisfaction))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.relaxed))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.unassignedRoles))
}

func TestCollector_ObserveTrial(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "")

	c.ObserveTrial(allocator.TrialStats{Index: 0, Duration: time.Microsecond})
	c.ObserveTrial(allocator.TrialStats{Index: 1, Duration: time.Microsecond})
	assert.Equal(t, 1, testutil.CollectAndCount(c.trialDuration))

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "allocator_trial_duration_seconds")
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ObserveTrial(allocator.TrialStats{})
	c.ObserveRun(nil, 0, nil)
}
