package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const defaultFlushInterval = 5 * time.Second

var errDispatcherStopped = errors.New("dispatcher stopped")

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type flusher interface {
	Flush(ctx context.Context) error
}

// ServiceParams wire the worker. Every dependency must answer Ping before
// the dispatcher starts.
type ServiceParams struct {
	Logger        *logger.Logger
	Dependencies  map[string]pinger
	Dispatcher    runner
	Analytics     flusher
	FlushInterval time.Duration
}

// Service runs the order event dispatcher and periodically flushes buffered
// analytics rows.
type Service struct {
	logg          *logger.Logger
	deps          map[string]pinger
	dispatcher    runner
	analytics     flusher
	flushInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("event dispatcher is required")
	}
	for name, dep := range params.Dependencies {
		if dep == nil {
			return nil, fmt.Errorf("%s client is required", name)
		}
	}
	interval := params.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Service{
		logg:          params.Logger,
		deps:          params.Dependencies,
		dispatcher:    params.Dispatcher,
		analytics:     params.Analytics,
		flushInterval: interval,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until ctx ends or the dispatcher stops. Buffered analytics rows
// are flushed once more on the way out.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.dispatcher.Run(groupCtx)
		if err == nil && groupCtx.Err() == nil {
			return errDispatcherStopped
		}
		return err
	})
	if s.analytics != nil {
		group.Go(func() error { return s.flushLoop(groupCtx) })
	}
	err := group.Wait()
	s.flush(context.WithoutCancel(ctx))

	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	if err != nil {
		s.logg.Error(ctx, "dispatcher stopped unexpectedly", err)
	}
	return err
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Service) flush(ctx context.Context) {
	if s.analytics == nil {
		return
	}
	if err := s.analytics.Flush(ctx); err != nil {
		s.logg.Error(ctx, "analytics flush failed", err)
	}
}
