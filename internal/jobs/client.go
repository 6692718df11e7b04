package jobs

import (
	"context"
	"fmt"

	"adtel/internal/config"
	"adtel/internal/observability"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Client handles enqueueing background jobs
type Client struct {
	client *asynq.Client
	logger *observability.Logger
}

// NewClient creates a new job client
func NewClient(cfg config.RedisConfig, logger *observability.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{
		client: client,
		logger: logger,
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error(ctx, fmt.Sprintf("failed to enqueue %s task", task.Type()), err)
		return fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}
	c.logger.Info(ctx, fmt.Sprintf("enqueued %s task: %s (queue: %s)", task.Type(), info.ID, info.Queue))
	return nil
}

// EnqueuePushDeliver enqueues an offer delivery fan-out
func (c *Client) EnqueuePushDeliver(ctx context.Context, payload PushDeliverPayload) error {
	task, err := NewPushDeliverTask(payload)
	if err != nil {
		c.logger.Error(ctx, "failed to create push deliver task", err)
		return fmt.Errorf("failed to create push deliver task: %w", err)
	}
	return c.enqueue(ctx, task)
}

// EnqueuePushKeyboards enqueues a post-claim keyboard refresh
func (c *Client) EnqueuePushKeyboards(ctx context.Context, payload PushKeyboardsPayload) error {
	task, err := NewPushKeyboardsTask(payload)
	if err != nil {
		c.logger.Error(ctx, "failed to create push keyboards task", err)
		return fmt.Errorf("failed to create push keyboards task: %w", err)
	}
	return c.enqueue(ctx, task)
}

// EnqueueShotProcess enqueues screenshot intake
func (c *Client) EnqueueShotProcess(ctx context.Context, payload ShotProcessPayload) error {
	task, err := NewShotProcessTask(payload)
	if err != nil {
		c.logger.Error(ctx, "failed to create shot process task", err)
		return fmt.Errorf("failed to create shot process task: %w", err)
	}
	return c.enqueue(ctx, task)
}

// EnqueueMediaWarm enqueues a content media warm-up
func (c *Client) EnqueueMediaWarm(ctx context.Context, payload MediaWarmPayload) error {
	task, err := NewMediaWarmTask(payload)
	if err != nil {
		c.logger.Error(ctx, "failed to create media warm task", err)
		return fmt.Errorf("failed to create media warm task: %w", err)
	}
	return c.enqueue(ctx, task)
}

// EnqueuePayoutReceipts enqueues a receipt calculation pass
func (c *Client) EnqueuePayoutReceipts(ctx context.Context) error {
	return c.enqueue(ctx, NewPayoutReceiptsTask())
}

// EnqueuePaidNotice enqueues a payout notification
func (c *Client) EnqueuePaidNotice(ctx context.Context, payload PayoutPaidNoticePayload) error {
	task, err := NewPayoutPaidNoticeTask(payload)
	if err != nil {
		c.logger.Error(ctx, "failed to create paid notice task", err)
		return fmt.Errorf("failed to create paid notice task: %w", err)
	}
	return c.enqueue(ctx, task)
}

// Deliver satisfies the allocation deliverer: the sweep queues the fan-out
// instead of blocking on Telegram round-trips.
func (c *Client) Deliver(ctx context.Context, offerID uuid.UUID, onlyUserIDs ...uuid.UUID) error {
	return c.EnqueuePushDeliver(ctx, PushDeliverPayload{OfferID: offerID, UserIDs: onlyUserIDs})
}

// EnqueueKeyboardRefresh queues reconciliation of the remaining recipients'
// offer keyboards after a claim.
func (c *Client) EnqueueKeyboardRefresh(ctx context.Context, offerID, excludeUserID uuid.UUID) error {
	return c.EnqueuePushKeyboards(ctx, PushKeyboardsPayload{OfferID: offerID, ExcludeUserID: excludeUserID})
}

// EnqueueShot queues screenshot intake for a post.
func (c *Client) EnqueueShot(ctx context.Context, postID uuid.UUID, fileID string) error {
	return c.EnqueueShotProcess(ctx, ShotProcessPayload{PostID: postID, FileID: fileID})
}

// WarmContent queues a media warm-up for one content.
func (c *Client) WarmContent(ctx context.Context, contentID uuid.UUID) error {
	return c.EnqueueMediaWarm(ctx, MediaWarmPayload{ContentID: contentID})
}
