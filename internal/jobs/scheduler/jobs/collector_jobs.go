package jobs

import (
	"context"
	"time"

	"adtel/internal/observability"
)

// Collector is the metrics surface the periodic jobs drive.
type Collector interface {
	PollViews(ctx context.Context, log, update bool) error
	PollShortLinks(ctx context.Context) error
	CloseFinished(ctx context.Context) error
	MarkNoShot(ctx context.Context, window time.Duration) error
	DisableOverBudget(ctx context.Context) error
}

// ViewPollJob samples message views for every pollable post
type ViewPollJob struct {
	collector Collector
	logger    *observability.Logger
	interval  time.Duration
}

// NewViewPollJob creates a new view poll job
func NewViewPollJob(collector Collector, logger *observability.Logger, interval time.Duration) *ViewPollJob {
	if interval == 0 {
		interval = 30 * time.Minute
	}
	return &ViewPollJob{collector: collector, logger: logger, interval: interval}
}

// Name returns the job name
func (j *ViewPollJob) Name() string { return "view_poll" }

// Schedule returns how often the job should run
func (j *ViewPollJob) Schedule() time.Duration { return j.interval }

// Run appends a view log sample and refreshes unfrozen counters
func (j *ViewPollJob) Run(ctx context.Context) error {
	return j.collector.PollViews(ctx, true, true)
}

// ShortLinkPollJob samples hit counters for every minted short link
type ShortLinkPollJob struct {
	collector Collector
	logger    *observability.Logger
	interval  time.Duration
}

// NewShortLinkPollJob creates a new short link poll job
func NewShortLinkPollJob(collector Collector, logger *observability.Logger, interval time.Duration) *ShortLinkPollJob {
	if interval == 0 {
		interval = time.Hour
	}
	return &ShortLinkPollJob{collector: collector, logger: logger, interval: interval}
}

// Name returns the job name
func (j *ShortLinkPollJob) Name() string { return "shortlink_poll" }

// Schedule returns how often the job should run
func (j *ShortLinkPollJob) Schedule() time.Duration { return j.interval }

// Run samples the short link counters
func (j *ShortLinkPollJob) Run(ctx context.Context) error {
	return j.collector.PollShortLinks(ctx)
}

// CampaignCloseJob freezes counters of campaigns past their end time
type CampaignCloseJob struct {
	collector Collector
	logger    *observability.Logger
	interval  time.Duration
}

// NewCampaignCloseJob creates a new campaign close job
func NewCampaignCloseJob(collector Collector, logger *observability.Logger, interval time.Duration) *CampaignCloseJob {
	if interval == 0 {
		interval = time.Hour
	}
	return &CampaignCloseJob{collector: collector, logger: logger, interval: interval}
}

// Name returns the job name
func (j *CampaignCloseJob) Name() string { return "campaign_close" }

// Schedule returns how often the job should run
func (j *CampaignCloseJob) Schedule() time.Duration { return j.interval }

// Run freezes and closes finished campaigns
func (j *CampaignCloseJob) Run(ctx context.Context) error {
	return j.collector.CloseFinished(ctx)
}

// NoShotJob marks posts whose proof never arrived inside the window
type NoShotJob struct {
	collector Collector
	logger    *observability.Logger
	window    time.Duration
	interval  time.Duration
}

// NewNoShotJob creates a new no-shot job
func NewNoShotJob(collector Collector, logger *observability.Logger, window, interval time.Duration) *NoShotJob {
	if window == 0 {
		window = 48 * time.Hour
	}
	if interval == 0 {
		interval = 6 * time.Hour
	}
	return &NoShotJob{collector: collector, logger: logger, window: window, interval: interval}
}

// Name returns the job name
func (j *NoShotJob) Name() string { return "mark_no_shot" }

// Schedule returns how often the job should run
func (j *NoShotJob) Schedule() time.Duration { return j.interval }

// Run flags overdue posts as no-shot
func (j *NoShotJob) Run(ctx context.Context) error {
	return j.collector.MarkNoShot(ctx, j.window)
}

// BudgetGuardJob disables campaigns whose partial views exceeded the budget
type BudgetGuardJob struct {
	collector Collector
	logger    *observability.Logger
	interval  time.Duration
}

// NewBudgetGuardJob creates a new budget guard job
func NewBudgetGuardJob(collector Collector, logger *observability.Logger, interval time.Duration) *BudgetGuardJob {
	if interval == 0 {
		interval = 15 * time.Minute
	}
	return &BudgetGuardJob{collector: collector, logger: logger, interval: interval}
}

// Name returns the job name
func (j *BudgetGuardJob) Name() string { return "budget_guard" }

// Schedule returns how often the job should run
func (j *BudgetGuardJob) Schedule() time.Duration { return j.interval }

// Run disables over-budget campaigns
func (j *BudgetGuardJob) Run(ctx context.Context) error {
	return j.collector.DisableOverBudget(ctx)
}
