package jobs

import (
	"context"
	"time"

	"adtel/internal/observability"
)

// Allocator sweeps open campaigns and mints offers for remaining budget.
type Allocator interface {
	Sweep(ctx context.Context) error
}

// AllocationSweepJob runs the allocation sweep on a schedule
type AllocationSweepJob struct {
	allocator Allocator
	logger    *observability.Logger
	interval  time.Duration
}

// NewAllocationSweepJob creates a new allocation sweep job
func NewAllocationSweepJob(allocator Allocator, logger *observability.Logger, interval time.Duration) *AllocationSweepJob {
	if interval == 0 {
		interval = time.Minute
	}
	return &AllocationSweepJob{
		allocator: allocator,
		logger:    logger,
		interval:  interval,
	}
}

// Name returns the job name
func (j *AllocationSweepJob) Name() string {
	return "allocation_sweep"
}

// Schedule returns how often the job should run
func (j *AllocationSweepJob) Schedule() time.Duration {
	return j.interval
}

// Run executes one allocation sweep
func (j *AllocationSweepJob) Run(ctx context.Context) error {
	return j.allocator.Sweep(ctx)
}
