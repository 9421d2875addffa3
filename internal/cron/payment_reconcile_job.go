package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const (
	defaultReconcileAfter = 15 * time.Minute
	defaultReconcileBatch = 100
)

// PaymentReconcileJobParams configure the pending payment sweep.
type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Payments pendingPaymentReconciler
	After    time.Duration
	Batch    int
}

type pendingPaymentReconciler interface {
	ReconcilePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewPaymentReconcileJob builds the job that polls the gateway for payment
// transactions left pending longer than after, covering missed webhooks.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultReconcileAfter
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentReconcileJob{
		logg:     params.Logger,
		payments: params.Payments,
		after:    after,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	payments pendingPaymentReconciler
	after    time.Duration
	batch    int
	now      func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	settled, err := j.payments.ReconcilePending(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"settled": settled,
	})
	if err != nil {
		return fmt.Errorf("reconcile pending payments: %w", err)
	}
	if settled > 0 {
		j.logg.Info(logCtx, "pending payments settled")
	}
	return nil
}
