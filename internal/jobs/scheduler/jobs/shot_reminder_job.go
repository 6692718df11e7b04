package jobs

import (
	"context"
	"fmt"
	"time"

	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/store"

	"github.com/google/uuid"
)

const shotReminderDedupKey = "shot_reminder:sent"

// ShotReminderStore resolves overdue posts back to their admins.
type ShotReminderStore interface {
	ListShotOverduePosts(ctx context.Context, cutoff time.Time) ([]store.Post, error)
	GetAssignmentByID(ctx context.Context, id uuid.UUID) (store.Assignment, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (store.BotUser, error)
}

// ReminderDedup is the set used to remind about each post at most once.
type ReminderDedup interface {
	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)
	SAdd(ctx context.Context, key string, members ...interface{}) error
}

// ShotReminderJob nudges admins whose posts still miss a screenshot. Each
// post is reminded about once, and only inside the daytime window.
type ShotReminderJob struct {
	store     ShotReminderStore
	dedup     ReminderDedup
	telegram  telegram.Client
	logger    *observability.Logger
	lead      time.Duration
	openHour  int
	closeHour int
	interval  time.Duration
}

// NewShotReminderJob creates a new shot reminder job
func NewShotReminderJob(st ShotReminderStore, dedup ReminderDedup, tg telegram.Client, logger *observability.Logger, lead time.Duration, openHour, closeHour int, interval time.Duration) *ShotReminderJob {
	if lead == 0 {
		lead = 6 * time.Hour
	}
	if interval == 0 {
		interval = time.Hour
	}
	if closeHour == 0 {
		closeHour = 23
	}
	return &ShotReminderJob{
		store:     st,
		dedup:     dedup,
		telegram:  tg,
		logger:    logger,
		lead:      lead,
		openHour:  openHour,
		closeHour: closeHour,
		interval:  interval,
	}
}

// Name returns the job name
func (j *ShotReminderJob) Name() string { return "shot_reminder" }

// Schedule returns how often the job should run
func (j *ShotReminderJob) Schedule() time.Duration { return j.interval }

// Run sends one reminder per overdue post
func (j *ShotReminderJob) Run(ctx context.Context) error {
	hour := time.Now().Hour()
	if hour < j.openHour || hour >= j.closeHour {
		return nil
	}

	posts, err := j.store.ListShotOverduePosts(ctx, time.Now().Add(-j.lead))
	if err != nil {
		return fmt.Errorf("failed to list overdue posts: %w", err)
	}

	for _, post := range posts {
		member := post.ID.String()
		seen, err := j.dedup.SIsMember(ctx, shotReminderDedupKey, member)
		if err != nil {
			j.logger.Error(ctx, "failed to check reminder dedup set", err)
			continue
		}
		if seen {
			continue
		}

		assignment, err := j.store.GetAssignmentByID(ctx, post.AssignmentID)
		if err != nil {
			j.logger.Error(ctx, "failed to resolve assignment for reminder", err)
			continue
		}
		user, err := j.store.GetUserByID(ctx, assignment.UserID)
		if err != nil {
			j.logger.Error(ctx, "failed to resolve admin for reminder", err)
			continue
		}

		text := "One of your posts is still missing its screenshot. Use the menu to send it before the campaign closes."
		if _, err := j.telegram.SendText(ctx, user.TelegramID, text, telegram.SendOptions{}); err != nil {
			j.logger.Error(ctx, "failed to send shot reminder", err)
			continue
		}
		if err := j.dedup.SAdd(ctx, shotReminderDedupKey, member); err != nil {
			j.logger.Error(ctx, "failed to record reminder dedup", err)
		}
	}
	return nil
}
