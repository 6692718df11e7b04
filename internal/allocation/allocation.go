package allocation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"adtel/internal/observability"
	"adtel/internal/session"
	"adtel/internal/store"
)

// Store is the persistence surface the allocator needs.
type Store interface {
	ListOpenCampaigns(ctx context.Context) ([]store.Campaign, error)
	ConfirmedViews(ctx context.Context, campaignID uuid.UUID) (int64, error)
	ListEligibleChannels(ctx context.Context, campaignID uuid.UUID) ([]store.EligibleChannel, error)
	ListChannelAdmins(ctx context.Context, channelID uuid.UUID) ([]store.BotUser, error)
	CreatePushOffer(ctx context.Context, params store.CreatePushOfferParams) (store.PushOffer, error)
}

// Deliverer fans a created offer out to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, offerID uuid.UUID, onlyUserIDs ...uuid.UUID) error
}

// Allocator walks open campaigns and offers unfilled view budget to eligible
// channels.
type Allocator struct {
	store     Store
	sessions  session.Store
	deliverer Deliverer
	logger    *observability.Logger
}

// New creates an allocator.
func New(st Store, sessions session.Store, deliverer Deliverer, logger *observability.Logger) *Allocator {
	return &Allocator{store: st, sessions: sessions, deliverer: deliverer, logger: logger}
}

// Sweep runs one allocation pass over every open campaign. Per-campaign
// failures are logged and do not stop the sweep.
func (a *Allocator) Sweep(ctx context.Context) error {
	campaigns, err := a.store.ListOpenCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open campaigns: %w", err)
	}

	held, err := a.heldViewsByCampaign(ctx)
	if err != nil {
		a.logger.Error(ctx, "failed to read in-flight selections, counting none", err)
		held = map[uuid.UUID]int64{}
	}

	for _, campaign := range campaigns {
		if err := a.sweepCampaign(ctx, campaign, held[campaign.ID]); err != nil {
			a.logger.Error(ctx, "allocation failed for campaign "+campaign.ID.String(), err)
		}
	}
	return nil
}

// heldViewsByCampaign sums the view efficiency soft-held by working sets of
// admins still deciding on an offer. Held views count against the budget so
// concurrent offers cannot oversell a campaign.
func (a *Allocator) heldViewsByCampaign(ctx context.Context) (map[uuid.UUID]int64, error) {
	sessions, err := a.sessions.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	held := map[uuid.UUID]int64{}
	for _, sess := range sessions {
		if sess.CampaignID == nil {
			continue
		}
		held[*sess.CampaignID] += sess.HeldViews()
	}
	return held, nil
}

func (a *Allocator) sweepCampaign(ctx context.Context, campaign store.Campaign, heldViews int64) error {
	confirmed, err := a.store.ConfirmedViews(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to count confirmed views: %w", err)
	}
	remaining := campaign.MaxView - confirmed - heldViews
	if remaining <= 0 {
		return nil
	}

	eligible, err := a.store.ListEligibleChannels(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to list eligible channels: %w", err)
	}

	picked := pick(eligible, remaining)
	if len(picked) == 0 {
		return nil
	}

	groups, err := a.groupByAdmins(ctx, picked)
	if err != nil {
		return err
	}

	for _, group := range groups {
		offer, err := a.store.CreatePushOffer(ctx, store.CreatePushOfferParams{
			CampaignID: campaign.ID,
			ChannelIDs: group.channelIDs,
			UserIDs:    group.adminIDs,
		})
		if err != nil {
			a.logger.Error(ctx, "failed to create push offer", err)
			continue
		}
		if err := a.deliverer.Deliver(ctx, offer.ID); err != nil {
			a.logger.Error(ctx, "failed to deliver push offer", err)
		}
	}
	return nil
}

// pick greedily walks channels in ascending id order and takes every channel
// whose view efficiency still fits the remaining budget. A channel that does
// not fit is skipped, not a stop: smaller channels after it may still fit.
// The picked set's total never exceeds the budget at pick time.
func pick(eligible []store.EligibleChannel, remaining int64) []store.EligibleChannel {
	var picked []store.EligibleChannel
	for _, ch := range eligible {
		if ch.ViewEfficiency <= 0 {
			continue
		}
		if ch.ViewEfficiency > remaining {
			continue
		}
		picked = append(picked, ch)
		remaining -= ch.ViewEfficiency
	}
	return picked
}

type offerGroup struct {
	channelIDs []uuid.UUID
	adminIDs   []uuid.UUID
}

// groupByAdmins buckets picked channels by their exact admin set, so every
// admin of a group sees the whole group in one offer.
func (a *Allocator) groupByAdmins(ctx context.Context, picked []store.EligibleChannel) ([]offerGroup, error) {
	groups := map[string]*offerGroup{}
	var order []string

	for _, ch := range picked {
		admins, err := a.store.ListChannelAdmins(ctx, ch.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list admins for channel %s: %w", ch.ID, err)
		}
		if len(admins) == 0 {
			continue
		}

		adminIDs := make([]uuid.UUID, 0, len(admins))
		keys := make([]string, 0, len(admins))
		for _, admin := range admins {
			adminIDs = append(adminIDs, admin.ID)
			keys = append(keys, admin.ID.String())
		}
		sort.Strings(keys)
		key := strings.Join(keys, ",")

		group, ok := groups[key]
		if !ok {
			group = &offerGroup{adminIDs: adminIDs}
			groups[key] = group
			order = append(order, key)
		}
		group.channelIDs = append(group.channelIDs, ch.ID)
	}

	out := make([]offerGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out, nil
}
