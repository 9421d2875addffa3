package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const defaultExpiryBatch = 100

// UnpaidOrderExpiryJobParams configure the unpaid order sweep.
type UnpaidOrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders unpaidOrderExpirer
	TTL    time.Duration
	Batch  int
}

type unpaidOrderExpirer interface {
	ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewUnpaidOrderExpiryJob builds the job that cancels online orders whose
// payment never completed within ttl. Cancelling releases the reserved stock.
func NewUnpaidOrderExpiryJob(params UnpaidOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("unpaid ttl must be positive")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &unpaidOrderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    params.TTL,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type unpaidOrderExpiryJob struct {
	logg   *logger.Logger
	orders unpaidOrderExpirer
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *unpaidOrderExpiryJob) Name() string { return "unpaid-order-expiry" }

func (j *unpaidOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.orders.ExpireUnpaid(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("expire unpaid orders: %w", err)
	}
	if expired > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":  cutoff,
			"expired": expired,
		})
		j.logg.Info(logCtx, "unpaid orders expired")
	}
	return nil
}
