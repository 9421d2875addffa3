package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquired bool
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held || f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	run  func(ctx context.Context) error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.run == nil {
		return nil
	}
	return t.run(ctx)
}

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	return registry
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	registry := mustRegistry(t)
	_, err := NewService(ServiceParams{Registry: registry, Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop(), Registry: registry})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}})
	assert.Error(t, err)

	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: registry, Lock: &fakeLock{}})
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, svc.interval)
	assert.Equal(t, defaultJobTimeout, svc.jobTimeout)
}

func TestRunCycleContinuesPastFailures(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "failing", run: func(context.Context) error { return errors.New("boom") }}
	panicking := &testJob{name: "panicking", run: func(context.Context) error { panic("kaboom") }}
	after := &testJob{name: "after"}
	svc := newTestService(t, &fakeLock{}, ok, failing, panicking, after)

	result, err := svc.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Succeeded: 2, Failed: 2}, result)
	for _, job := range []*testJob{ok, failing, panicking, after} {
		assert.Equal(t, 1, job.runs, job.name)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "only"}
	svc := newTestService(t, &fakeLock{held: true}, job)

	result, err := svc.runCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, job.runs)
}

func TestRunCycleSurfacesLockError(t *testing.T) {
	svc := newTestService(t, &fakeLock{err: errors.New("redis down")}, &testJob{name: "a"})
	_, err := svc.runCycle(context.Background())
	assert.ErrorContains(t, err, "redis down")
}

func TestRunCycleReleasesLock(t *testing.T) {
	lock := &fakeLock{}
	svc := newTestService(t, lock, &testJob{name: "a"})
	_, err := svc.runCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, lock.acquired)
}

func TestRunJobAppliesTimeout(t *testing.T) {
	slow := &testJob{name: "slow", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	svc := newTestService(t, &fakeLock{}, slow)
	svc.jobTimeout = 10 * time.Millisecond

	result, err := svc.runCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "tick"}
	svc := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
