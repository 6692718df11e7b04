package jobs

import (
	"context"
	"time"

	"adtel/internal/observability"
)

// OfferExpirer expires offers that sat unanswered too long.
type OfferExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) error
}

// PushExpiryJob expires stale offers on a schedule
type PushExpiryJob struct {
	offers   OfferExpirer
	logger   *observability.Logger
	maxAge   time.Duration
	interval time.Duration
}

// NewPushExpiryJob creates a new push expiry job
func NewPushExpiryJob(offers OfferExpirer, logger *observability.Logger, maxAge, interval time.Duration) *PushExpiryJob {
	if maxAge == 0 {
		maxAge = time.Hour
	}
	if interval == 0 {
		interval = 10 * time.Minute
	}
	return &PushExpiryJob{
		offers:   offers,
		logger:   logger,
		maxAge:   maxAge,
		interval: interval,
	}
}

// Name returns the job name
func (j *PushExpiryJob) Name() string {
	return "push_expiry"
}

// Schedule returns how often the job should run
func (j *PushExpiryJob) Schedule() time.Duration {
	return j.interval
}

// Run expires every offer older than the cutoff
func (j *PushExpiryJob) Run(ctx context.Context) error {
	return j.offers.ExpireStale(ctx, j.maxAge)
}
