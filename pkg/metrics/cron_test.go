package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Unix(1_700_000_000, 0)

	m.ObserveRun("expire-payments", CronStatusSuccess, 250*time.Millisecond, finished)
	m.ObserveRun("expire-payments", CronStatusFailure, time.Second, finished.Add(time.Minute))
	m.ObserveRun("", CronStatusPanic, time.Millisecond, finished)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("expire-payments", CronStatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("expire-payments", CronStatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", CronStatusPanic)))
	assert.Equal(t, float64(finished.Unix()), gaugeValue(t, reg, "cron_job_last_success_timestamp_seconds", "expire-payments"))

	count, err := testutil.GatherAndCount(reg, "cron_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	assert.NotPanics(t, func() { m.ObserveRun("job", CronStatusSuccess, time.Second, time.Now()) })
	assert.NotPanics(t, func() {
		NewCronJobMetrics(nil).ObserveRun("job", CronStatusFailure, time.Second, time.Now())
	})
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabel(metric.GetLabel(), "job", job) {
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("gauge %s{job=%q} not found", name, job)
	return 0
}

func hasLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
