package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Minute
	defaultJobTimeout = 30 * time.Second
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the registered maintenance jobs on a fixed cadence. Only the
// replica holding the lock runs a cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// CycleResult summarises one pass over the registry.
type CycleResult struct {
	Skipped   bool
	Succeeded int
	Failed    int
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	if params.Registry == nil {
		return nil, errors.New("registry required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	return &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: jobTimeout,
		now:        time.Now,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	result, err := s.runCycle(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron cycle failed", err)
		return
	}
	if result.Skipped {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}), "cron cycle finished")
}

func (s *Service) runCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Debug(ctx, "cron lock held elsewhere; skipping cycle")
		result.Skipped = true
		return result, nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if s.runJob(ctx, job) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	start := s.now()
	err := s.invoke(jobCtx, job)
	finished := s.now()
	duration := finished.Sub(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())

	var panicked *jobPanic
	switch {
	case errors.As(err, &panicked):
		s.logg.Error(jobCtx, "job panicked", err)
		s.metrics.ObserveRun(job.Name(), metrics.CronStatusPanic, duration, finished)
		return false
	case err != nil:
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.ObserveRun(job.Name(), metrics.CronStatusFailure, duration, finished)
		return false
	}
	s.logg.Debug(jobCtx, "job completed")
	s.metrics.ObserveRun(job.Name(), metrics.CronStatusSuccess, duration, finished)
	return true
}

type jobPanic struct {
	value any
}

func (p *jobPanic) Error() string { return fmt.Sprintf("panic: %v", p.value) }

// invoke bounds a single job by the job timeout and turns a panic into an error.
func (s *Service) invoke(ctx context.Context, job Job) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = &jobPanic{value: r}
		}
	}()
	return job.Run(runCtx)
}
