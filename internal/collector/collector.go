package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adtel/internal/clients/mtproto"
	"adtel/internal/clients/shortlink"
	"adtel/internal/observability"
	"adtel/internal/store"
)

// Store is the persistence surface the collector needs.
type Store interface {
	ListPollablePosts(ctx context.Context) ([]store.Post, error)
	ListPostsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]store.Post, error)
	ListShotOverduePosts(ctx context.Context, cutoff time.Time) ([]store.Post, error)
	GetContentByID(ctx context.Context, id uuid.UUID) (store.Content, error)
	GetChannelByID(ctx context.Context, id uuid.UUID) (store.Channel, error)
	AppendPostViewLog(ctx context.Context, postID uuid.UUID, views int64) error
	UpdatePostViews(ctx context.Context, id uuid.UUID, views int64) error
	MarkPostNoShot(ctx context.Context, id uuid.UUID) error
	ListActiveShortLinks(ctx context.Context) ([]store.ShortLink, error)
	AppendShortLinkLog(ctx context.Context, shortLinkID uuid.UUID, hitCount, ipCount int64) error
	ListOpenCampaigns(ctx context.Context) ([]store.Campaign, error)
	ListCampaignsPastEnd(ctx context.Context) ([]store.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status string) error
	SetCampaignEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// ViewReader fetches message view counters from a broadcast channel.
type ViewReader interface {
	MessageViews(ctx context.Context, channelUsername string, messageIDs []int) (map[int]int64, error)
}

// LinkStats fetches hit counters of minted short links.
type LinkStats interface {
	GetStats(ctx context.Context, externalID string) (shortlink.Stats, error)
}

// Collector polls view counts and short-link hits for running campaigns and
// retires campaigns past their window.
type Collector struct {
	store      Store
	views      ViewReader
	links      LinkStats
	logger     *observability.Logger
	floodCheck func(error) bool
}

// New creates a collector.
func New(st Store, views ViewReader, links LinkStats, logger *observability.Logger) *Collector {
	return &Collector{
		store:      st,
		views:      views,
		links:      links,
		logger:     logger,
		floodCheck: mtproto.IsFloodWait,
	}
}

// postBatch is one mother channel's worth of posts to poll in a single call.
type postBatch struct {
	username string
	posts    []store.Post
}

// batchByChannel groups posts by the mother channel their message lives in.
// Total contents share one message, so the per-cycle fetch also collapses
// per distinct content. Posts whose content or channel cannot be resolved
// are skipped with an error log.
func (c *Collector) batchByChannel(ctx context.Context, posts []store.Post) []postBatch {
	contents := map[uuid.UUID]store.Content{}
	channels := map[uuid.UUID]store.Channel{}
	index := map[string]int{}
	var batches []postBatch

	for _, post := range posts {
		content, ok := contents[post.ContentID]
		if !ok {
			var err error
			content, err = c.store.GetContentByID(ctx, post.ContentID)
			if err != nil {
				c.logger.Error(ctx, "failed to resolve post content", err)
				continue
			}
			contents[post.ContentID] = content
		}
		if content.MotherChannelID == nil {
			continue
		}
		channel, ok := channels[*content.MotherChannelID]
		if !ok {
			var err error
			channel, err = c.store.GetChannelByID(ctx, *content.MotherChannelID)
			if err != nil {
				c.logger.Error(ctx, "failed to resolve mother channel", err)
				continue
			}
			channels[*content.MotherChannelID] = channel
		}
		if channel.Username == nil || *channel.Username == "" {
			continue
		}

		i, ok := index[*channel.Username]
		if !ok {
			i = len(batches)
			index[*channel.Username] = i
			batches = append(batches, postBatch{username: *channel.Username})
		}
		batches[i].posts = append(batches[i].posts, post)
	}
	return batches
}

func (c *Collector) fetchBatch(ctx context.Context, batch postBatch) (map[int]int64, bool) {
	ids := make([]int, 0, len(batch.posts))
	seen := map[int]bool{}
	for _, post := range batch.posts {
		if !seen[post.MessageID] {
			seen[post.MessageID] = true
			ids = append(ids, post.MessageID)
		}
	}

	views, err := c.views.MessageViews(ctx, batch.username, ids)
	if err != nil {
		if c.floodCheck(err) {
			c.logger.Warn(ctx, "rate limited reading views for @"+batch.username+", skipping cycle")
		} else {
			c.logger.Error(ctx, "failed to read views for @"+batch.username, err)
		}
		return nil, false
	}
	return views, true
}

// PollViews runs one view-collection cycle. In log mode every resolved count
// is appended to the post's view history; in update mode posts that have no
// frozen count yet get one. Failures skip the affected batch only.
func (c *Collector) PollViews(ctx context.Context, log, update bool) error {
	posts, err := c.store.ListPollablePosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pollable posts: %w", err)
	}

	for _, batch := range c.batchByChannel(ctx, posts) {
		views, ok := c.fetchBatch(ctx, batch)
		if !ok {
			continue
		}
		for _, post := range batch.posts {
			count, ok := views[post.MessageID]
			if !ok {
				continue
			}
			if log {
				if err := c.store.AppendPostViewLog(ctx, post.ID, count); err != nil {
					c.logger.Error(ctx, "failed to append view log", err)
				}
			}
			if update && post.Views == nil {
				if err := c.store.UpdatePostViews(ctx, post.ID, count); err != nil {
					c.logger.Error(ctx, "failed to update post views", err)
				}
			}
		}
	}
	return nil
}

// PollShortLinks refreshes hit counters for short links of running
// campaigns. Per-link failures are logged and skipped.
func (c *Collector) PollShortLinks(ctx context.Context) error {
	links, err := c.store.ListActiveShortLinks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active short links: %w", err)
	}
	for _, link := range links {
		stats, err := c.links.GetStats(ctx, link.ExternalID)
		if err != nil {
			c.logger.Error(ctx, "failed to read short link stats for "+link.ExternalID, err)
			continue
		}
		if err := c.store.AppendShortLinkLog(ctx, link.ID, stats.HitCount, stats.IPCount); err != nil {
			c.logger.Error(ctx, "failed to append short link log", err)
		}
	}
	return nil
}

// CloseFinished retires campaigns past their end time: one final pass
// freezes every post's view count, then the campaign moves to close.
func (c *Collector) CloseFinished(ctx context.Context) error {
	campaigns, err := c.store.ListCampaignsPastEnd(ctx)
	if err != nil {
		return fmt.Errorf("failed to list finished campaigns: %w", err)
	}

	for _, campaign := range campaigns {
		cctx := observability.WithFields(ctx,
			observability.Field{Key: "campaign_id", Value: campaign.ID.String()},
		)
		posts, err := c.store.ListPostsByCampaign(ctx, campaign.ID)
		if err != nil {
			c.logger.Error(cctx, "failed to list posts of finished campaign", err)
			continue
		}
		for _, batch := range c.batchByChannel(ctx, posts) {
			views, ok := c.fetchBatch(ctx, batch)
			if !ok {
				continue
			}
			for _, post := range batch.posts {
				count, ok := views[post.MessageID]
				if !ok {
					continue
				}
				if err := c.store.UpdatePostViews(ctx, post.ID, count); err != nil {
					c.logger.Error(cctx, "failed to freeze post views", err)
				}
			}
		}
		if err := c.store.UpdateCampaignStatus(ctx, campaign.ID, store.CampaignStatusClose); err != nil {
			c.logger.Error(cctx, "failed to close campaign", err)
		}
	}
	return nil
}

// MarkNoShot flags posts whose proof window elapsed without a screenshot.
// Flagged posts are permanently excluded from payout.
func (c *Collector) MarkNoShot(ctx context.Context, window time.Duration) error {
	posts, err := c.store.ListShotOverduePosts(ctx, time.Now().Add(-window))
	if err != nil {
		return fmt.Errorf("failed to list overdue posts: %w", err)
	}
	for _, post := range posts {
		if err := c.store.MarkPostNoShot(ctx, post.ID); err != nil {
			c.logger.Error(ctx, "failed to mark post no shot", err)
		}
	}
	return nil
}

// DisableOverBudget disables campaigns whose partial contents already
// collected the whole view budget.
func (c *Collector) DisableOverBudget(ctx context.Context) error {
	campaigns, err := c.store.ListOpenCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open campaigns: %w", err)
	}

	contents := map[uuid.UUID]store.Content{}
	for _, campaign := range campaigns {
		if campaign.MaxView <= 0 {
			continue
		}
		posts, err := c.store.ListPostsByCampaign(ctx, campaign.ID)
		if err != nil {
			c.logger.Error(ctx, "failed to list posts for budget guard", err)
			continue
		}
		var total int64
		for _, post := range posts {
			if post.Views == nil {
				continue
			}
			content, ok := contents[post.ContentID]
			if !ok {
				content, err = c.store.GetContentByID(ctx, post.ContentID)
				if err != nil {
					c.logger.Error(ctx, "failed to resolve content for budget guard", err)
					continue
				}
				contents[post.ContentID] = content
			}
			if content.ViewType != store.ContentViewTypePartial {
				continue
			}
			total += *post.Views
		}
		if total >= campaign.MaxView {
			if err := c.store.SetCampaignEnabled(ctx, campaign.ID, false); err != nil {
				c.logger.Error(ctx, "failed to disable over-budget campaign", err)
			}
		}
	}
	return nil
}
