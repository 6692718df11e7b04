package jobs

import (
	"context"
	"time"

	"adtel/internal/observability"
)

// Payouts is the settlement surface the periodic jobs drive.
type Payouts interface {
	CalculateReceipts(ctx context.Context) error
	PruneInvalid(ctx context.Context, grace time.Duration) error
}

// ReceiptSweepJob prices settled assignments on a schedule
type ReceiptSweepJob struct {
	payouts  Payouts
	logger   *observability.Logger
	interval time.Duration
}

// NewReceiptSweepJob creates a new receipt sweep job
func NewReceiptSweepJob(payouts Payouts, logger *observability.Logger, interval time.Duration) *ReceiptSweepJob {
	if interval == 0 {
		interval = time.Hour
	}
	return &ReceiptSweepJob{payouts: payouts, logger: logger, interval: interval}
}

// Name returns the job name
func (j *ReceiptSweepJob) Name() string { return "receipt_sweep" }

// Schedule returns how often the job should run
func (j *ReceiptSweepJob) Schedule() time.Duration { return j.interval }

// Run prices every assignment whose views have settled
func (j *ReceiptSweepJob) Run(ctx context.Context) error {
	return j.payouts.CalculateReceipts(ctx)
}

// PruneInvalidJob deletes assignments that never produced posts
type PruneInvalidJob struct {
	payouts  Payouts
	logger   *observability.Logger
	grace    time.Duration
	interval time.Duration
}

// NewPruneInvalidJob creates a new prune job
func NewPruneInvalidJob(payouts Payouts, logger *observability.Logger, grace, interval time.Duration) *PruneInvalidJob {
	if grace == 0 {
		grace = 72 * time.Hour
	}
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return &PruneInvalidJob{payouts: payouts, logger: logger, grace: grace, interval: interval}
}

// Name returns the job name
func (j *PruneInvalidJob) Name() string { return "prune_invalid" }

// Schedule returns how often the job should run
func (j *PruneInvalidJob) Schedule() time.Duration { return j.interval }

// Run deletes empty assignments older than the grace period
func (j *PruneInvalidJob) Run(ctx context.Context) error {
	return j.payouts.PruneInvalid(ctx, j.grace)
}
