package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/session"
	"adtel/internal/store"
)

// Store is the persistence surface the push processor needs.
type Store interface {
	GetCampaignByID(ctx context.Context, id uuid.UUID) (store.Campaign, error)
	GetPushOfferByID(ctx context.Context, id uuid.UUID) (store.PushOffer, error)
	ListOfferRemainingChannelIDs(ctx context.Context, offerID uuid.UUID) ([]uuid.UUID, error)
	ListOfferRecipients(ctx context.Context, offerID uuid.UUID) ([]store.PushOfferRecipient, error)
	GetOfferRecipient(ctx context.Context, offerID, userID uuid.UUID) (store.PushOfferRecipient, error)
	SetRecipientMessageID(ctx context.Context, id uuid.UUID, messageID int) error
	SetRecipientStatus(ctx context.Context, id uuid.UUID, status string) error
	SetOfferStatus(ctx context.Context, id uuid.UUID, status string) error
	ListStaleOffers(ctx context.Context, cutoff time.Time) ([]store.PushOffer, error)
	ListChannelsByIDs(ctx context.Context, ids []uuid.UUID) ([]store.Channel, error)
	GetChannelByID(ctx context.Context, id uuid.UUID) (store.Channel, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (store.BotUser, error)
	GetPublisherTariff(ctx context.Context, campaignID, channelID uuid.UUID) (int64, error)
	GetPayoutAccount(ctx context.Context, channelID uuid.UUID) (store.BankAccount, error)
	ClaimChannels(ctx context.Context, params store.ClaimChannelsParams) (store.Assignment, error)
	ListOpenOffersForChannel(ctx context.Context, campaignID, channelID uuid.UUID) ([]store.PushOffer, error)
}

// Renderer posts a claimed campaign's contents to the winner's channels.
type Renderer interface {
	RenderAssignment(ctx context.Context, assignment store.Assignment, channels []store.Channel) error
}

// RefreshEnqueuer offloads post-claim keyboard reconciliation to the job
// queue so the claim path does not fan out Telegram edits inline.
type RefreshEnqueuer interface {
	EnqueueKeyboardRefresh(ctx context.Context, offerID, excludeUserID uuid.UUID) error
}

// Processor drives the offer negotiation: delivery, selection, claim,
// cancellation and expiry.
type Processor struct {
	store    Store
	sessions session.Store
	telegram telegram.Client
	renderer Renderer
	refresh  RefreshEnqueuer
	logger   *observability.Logger
}

// NewProcessor creates a push processor.
func NewProcessor(st Store, sessions session.Store, tg telegram.Client, renderer Renderer, logger *observability.Logger) *Processor {
	return &Processor{
		store:    st,
		sessions: sessions,
		telegram: tg,
		renderer: renderer,
		logger:   logger,
	}
}

// SetRefreshQueue makes confirm defer keyboard reconciliation to the queue.
// Without it keyboards are refreshed inline.
func (p *Processor) SetRefreshQueue(q RefreshEnqueuer) {
	p.refresh = q
}

// offerView is the per-offer working data most operations need.
type offerView struct {
	offer    store.PushOffer
	campaign store.Campaign
	channels []store.Channel
	tariffs  map[uuid.UUID]int64
}

func (p *Processor) loadOffer(ctx context.Context, offerID uuid.UUID) (offerView, error) {
	offer, err := p.store.GetPushOfferByID(ctx, offerID)
	if err != nil {
		return offerView{}, fmt.Errorf("failed to load offer: %w", err)
	}
	campaign, err := p.store.GetCampaignByID(ctx, offer.CampaignID)
	if err != nil {
		return offerView{}, fmt.Errorf("failed to load offer campaign: %w", err)
	}
	remaining, err := p.store.ListOfferRemainingChannelIDs(ctx, offerID)
	if err != nil {
		return offerView{}, fmt.Errorf("failed to list remaining channels: %w", err)
	}
	channels, err := p.store.ListChannelsByIDs(ctx, remaining)
	if err != nil {
		return offerView{}, fmt.Errorf("failed to load channels: %w", err)
	}
	tariffs := make(map[uuid.UUID]int64, len(channels))
	for _, ch := range channels {
		tariff, err := p.store.GetPublisherTariff(ctx, campaign.ID, ch.ID)
		if err != nil {
			return offerView{}, fmt.Errorf("failed to load tariff for channel %s: %w", ch.ID, err)
		}
		tariffs[ch.ID] = tariff
	}
	return offerView{offer: offer, campaign: campaign, channels: channels, tariffs: tariffs}, nil
}

func (v offerView) remainingSet() map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(v.channels))
	for _, ch := range v.channels {
		set[ch.ID] = true
	}
	return set
}

// Deliver fans an offer out to its recipients. With onlyUserIDs set, delivery
// is restricted to those admins (used to re-offer the remainder after a
// partial claim). Per-recipient failures are logged and marked failed without
// stopping the fan-out.
func (p *Processor) Deliver(ctx context.Context, offerID uuid.UUID, onlyUserIDs ...uuid.UUID) error {
	view, err := p.loadOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if len(view.channels) == 0 {
		return nil
	}

	recipients, err := p.store.ListOfferRecipients(ctx, offerID)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	only := make(map[uuid.UUID]bool, len(onlyUserIDs))
	for _, id := range onlyUserIDs {
		only[id] = true
	}

	keyboard := offerKeyboard(offerID, view.channels, view.tariffs, nil)
	text := offerText(view.campaign, len(view.channels))

	for _, recipient := range recipients {
		if len(only) > 0 && !only[recipient.UserID] {
			continue
		}
		if recipient.Status != store.PushRecipientStatusSent {
			continue
		}
		user, err := p.store.GetUserByID(ctx, recipient.UserID)
		if err != nil {
			p.logger.Error(ctx, "failed to resolve offer recipient", err)
			continue
		}

		rctx := observability.WithFields(ctx,
			observability.Field{Key: "offer_id", Value: offerID.String()},
			observability.Field{Key: "telegram_id", Value: fmt.Sprintf("%d", user.TelegramID)},
		)
		msg, err := p.telegram.SendText(rctx, user.TelegramID, text, telegram.SendOptions{Keyboard: keyboard})
		if err != nil {
			// Flood control is transient: leave the recipient in sent so the
			// next sweep retries instead of writing the admin off.
			if telegram.IsFloodWait(err) {
				p.logger.Warn(rctx, "rate limited delivering offer, skipping recipient this cycle")
				continue
			}
			p.logger.Error(rctx, "failed to deliver offer", err)
			if err := p.store.SetRecipientStatus(ctx, recipient.ID, store.PushRecipientStatusFailed); err != nil {
				p.logger.Error(rctx, "failed to mark recipient failed", err)
			}
			continue
		}
		if err := p.store.SetRecipientMessageID(ctx, recipient.ID, msg.MessageID); err != nil {
			p.logger.Error(rctx, "failed to record offer message id", err)
		}
	}
	return nil
}

// ToggleSelection flips a channel in the admin's working set and returns the
// updated session plus the refreshed keyboard for the offer message.
//
// Rules: a selected channel is removed; the first channel is always accepted;
// a channel whose tariff differs from the set's is rejected with
// ErrTariffMismatch; a channel paying out to a different bank account is
// rejected with ErrPayoutAccountMismatch.
func (p *Processor) ToggleSelection(ctx context.Context, telegramID int64, offerID, channelID uuid.UUID) (session.Session, telegram.Keyboard, error) {
	view, err := p.loadOffer(ctx, offerID)
	if err != nil {
		return session.Session{}, nil, err
	}
	// A received offer with a remainder is still negotiable: the claimer got
	// it re-delivered and may claim further subsets.
	if view.offer.Status != store.PushOfferStatusSent && view.offer.Status != store.PushOfferStatusReceived {
		return session.Session{}, nil, ErrOfferClosed
	}
	if !view.remainingSet()[channelID] {
		return session.Session{}, nil, ErrOfferClosed
	}

	sess, err := p.sessions.Get(ctx, telegramID)
	if err != nil {
		return session.Session{}, nil, err
	}
	// A selection carried over from another offer is stale.
	if sess.OfferID == nil || *sess.OfferID != offerID {
		sess.ClearSelection()
		sess.State = session.StateSelectingChannels
		sess.OfferID = &offerID
		sess.CampaignID = &view.campaign.ID
	}

	if sess.HasSelection(channelID) {
		sess.RemoveSelection(channelID)
	} else {
		channel, err := p.store.GetChannelByID(ctx, channelID)
		if err != nil {
			return session.Session{}, nil, err
		}
		payout, err := p.store.GetPayoutAccount(ctx, channelID)
		if err != nil {
			return session.Session{}, nil, err
		}
		tariff := view.tariffs[channelID]

		if setTariff, ok := sess.SelectionTariff(); ok && setTariff != tariff {
			return session.Session{}, nil, ErrTariffMismatch
		}
		if setAccount, ok := sess.SelectionPayoutAccount(); ok && setAccount != payout.ID {
			return session.Session{}, nil, ErrPayoutAccountMismatch
		}
		sess.AddSelection(session.Selection{
			ChannelID:       channelID,
			Tariff:          tariff,
			PayoutAccountID: payout.ID,
			ViewEfficiency:  channel.ViewEfficiency,
		})
	}

	if err := p.sessions.Save(ctx, sess); err != nil {
		return session.Session{}, nil, err
	}

	selected := make(map[uuid.UUID]bool, len(sess.Selections))
	for _, sel := range sess.Selections {
		selected[sel.ChannelID] = true
	}
	return sess, offerKeyboard(offerID, view.channels, view.tariffs, selected), nil
}

// Confirm turns the admin's working set into an assignment. On a claim
// conflict it returns an error wrapping both ErrAlreadyClaimed and the
// *store.ClaimConflictError naming the winner; the caller surfaces the notice
// and refreshes keyboards. On success the claim is committed first; rendering
// failures are logged and never undo it.
func (p *Processor) Confirm(ctx context.Context, offerID uuid.UUID, user store.BotUser) error {
	sess, err := p.sessions.Get(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	if sess.OfferID == nil || *sess.OfferID != offerID || len(sess.Selections) == 0 {
		return ErrEmptySelection
	}

	view, err := p.loadOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if view.offer.Status != store.PushOfferStatusSent && view.offer.Status != store.PushOfferStatusReceived {
		return ErrOfferClosed
	}

	tariff, _ := sess.SelectionTariff()
	payoutAccount, _ := sess.SelectionPayoutAccount()
	assignment, err := p.store.ClaimChannels(ctx, store.ClaimChannelsParams{
		CampaignID:      view.campaign.ID,
		UserID:          user.ID,
		ChannelIDs:      sess.SelectedChannelIDs(),
		Tariff:          tariff,
		PayoutAccountID: payoutAccount,
	})
	if err != nil {
		var conflict *store.ClaimConflictError
		if errors.As(err, &conflict) {
			p.refreshConflicted(ctx, view.campaign.ID, conflict.ChannelID)
			return fmt.Errorf("%w: %w", ErrAlreadyClaimed, conflict)
		}
		return fmt.Errorf("failed to claim channels: %w", err)
	}

	channels, err := p.store.ListChannelsByIDs(ctx, sess.SelectedChannelIDs())
	if err != nil {
		p.logger.Error(ctx, "failed to load claimed channels for render", err)
		channels = nil
	}

	recipient, err := p.store.GetOfferRecipient(ctx, offerID, user.ID)
	if err == nil && recipient.MessageID != nil {
		if err := p.telegram.DeleteMessage(ctx, user.TelegramID, *recipient.MessageID); err != nil {
			p.logger.Error(ctx, "failed to delete claimed offer message", err)
		}
	}

	sess.ClearSelection()
	if err := p.sessions.Save(ctx, sess); err != nil {
		p.logger.Error(ctx, "failed to clear selection after claim", err)
	}

	// The claim is committed; everything below is best-effort.
	if channels != nil {
		if err := p.renderer.RenderAssignment(ctx, assignment, channels); err != nil {
			p.logger.Error(ctx, "failed to render claimed campaign", err)
		}
	}

	if err := p.store.SetOfferStatus(ctx, offerID, store.PushOfferStatusReceived); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.Error(ctx, "failed to mark offer received", err)
	}

	remaining, err := p.store.ListOfferRemainingChannelIDs(ctx, offerID)
	if err != nil {
		p.logger.Error(ctx, "failed to list remainder after claim", err)
		return nil
	}
	if len(remaining) > 0 {
		if err := p.Deliver(ctx, offerID, user.ID); err != nil {
			p.logger.Error(ctx, "failed to re-offer remainder", err)
		}
	}
	if p.refresh != nil {
		if err := p.refresh.EnqueueKeyboardRefresh(ctx, offerID, user.ID); err != nil {
			p.logger.Error(ctx, "failed to queue keyboard refresh", err)
		}
	} else if err := p.RefreshKeyboards(ctx, offerID, user.ID); err != nil {
		p.logger.Error(ctx, "failed to refresh stale keyboards", err)
	}
	return nil
}

// refreshConflicted reconciles every open offer still carrying a channel
// that just went to another admin. Their keyboards lose the channel and
// in-flight working sets are pruned, so the losing side cannot keep
// toggling something already claimed.
func (p *Processor) refreshConflicted(ctx context.Context, campaignID, channelID uuid.UUID) {
	offers, err := p.store.ListOpenOffersForChannel(ctx, campaignID, channelID)
	if err != nil {
		p.logger.Error(ctx, "failed to list offers touched by claim conflict", err)
		return
	}
	for _, offer := range offers {
		if p.refresh != nil {
			if err := p.refresh.EnqueueKeyboardRefresh(ctx, offer.ID, uuid.Nil); err != nil {
				p.logger.Error(ctx, "failed to queue conflict keyboard refresh", err)
			}
			continue
		}
		if err := p.RefreshKeyboards(ctx, offer.ID, uuid.Nil); err != nil {
			p.logger.Error(ctx, "failed to refresh conflicted keyboards", err)
		}
	}
}

// Cancel dismisses the offer for one admin: the working set is cleared and
// their offer message deleted. The offer itself stays open for everyone else.
func (p *Processor) Cancel(ctx context.Context, offerID uuid.UUID, user store.BotUser) error {
	sess, err := p.sessions.Get(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	if sess.OfferID != nil && *sess.OfferID == offerID {
		sess.ClearSelection()
		if err := p.sessions.Save(ctx, sess); err != nil {
			return err
		}
	}

	recipient, err := p.store.GetOfferRecipient(ctx, offerID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if recipient.MessageID != nil {
		if err := p.telegram.DeleteMessage(ctx, user.TelegramID, *recipient.MessageID); err != nil {
			p.logger.Error(ctx, "failed to delete dismissed offer message", err)
		}
	}
	return nil
}

// ExpireStale force-closes offers that sat unanswered longer than olderThan:
// outstanding messages are deleted, recipients and the offer marked expired.
func (p *Processor) ExpireStale(ctx context.Context, olderThan time.Duration) error {
	offers, err := p.store.ListStaleOffers(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("failed to list stale offers: %w", err)
	}

	for _, offer := range offers {
		octx := observability.WithFields(ctx,
			observability.Field{Key: "offer_id", Value: offer.ID.String()},
		)
		recipients, err := p.store.ListOfferRecipients(ctx, offer.ID)
		if err != nil {
			p.logger.Error(octx, "failed to list recipients of stale offer", err)
			continue
		}
		for _, recipient := range recipients {
			if recipient.Status != store.PushRecipientStatusSent {
				continue
			}
			if recipient.MessageID != nil {
				user, err := p.store.GetUserByID(ctx, recipient.UserID)
				if err == nil {
					if err := p.telegram.DeleteMessage(ctx, user.TelegramID, *recipient.MessageID); err != nil {
						p.logger.Error(octx, "failed to delete expired offer message", err)
					}
				}
			}
			if err := p.store.SetRecipientStatus(ctx, recipient.ID, store.PushRecipientStatusExpired); err != nil {
				p.logger.Error(octx, "failed to expire recipient", err)
			}
		}
		if err := p.store.SetOfferStatus(ctx, offer.ID, store.PushOfferStatusExpired); err != nil && !errors.Is(err, store.ErrNotFound) {
			p.logger.Error(octx, "failed to expire offer", err)
		}
	}
	return nil
}

// RefreshKeyboards reconciles every other recipient's offer message with the
// channels still up for grabs: claimed channels disappear from keyboards and
// from in-flight working sets, and messages are deleted outright when nothing
// remains.
func (p *Processor) RefreshKeyboards(ctx context.Context, offerID uuid.UUID, excludeUserID uuid.UUID) error {
	view, err := p.loadOffer(ctx, offerID)
	if err != nil {
		return err
	}
	remaining := view.remainingSet()

	recipients, err := p.store.ListOfferRecipients(ctx, offerID)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}

	for _, recipient := range recipients {
		if recipient.UserID == excludeUserID || recipient.MessageID == nil {
			continue
		}
		if recipient.Status != store.PushRecipientStatusSent {
			continue
		}
		user, err := p.store.GetUserByID(ctx, recipient.UserID)
		if err != nil {
			p.logger.Error(ctx, "failed to resolve recipient for keyboard refresh", err)
			continue
		}

		sess, err := p.sessions.Get(ctx, user.TelegramID)
		if err != nil {
			p.logger.Error(ctx, "failed to load session for keyboard refresh", err)
			sess = session.Session{TelegramID: user.TelegramID, State: session.StateIdle}
		}
		if sess.OfferID != nil && *sess.OfferID == offerID {
			pruned := false
			for _, sel := range sess.SelectedChannelIDs() {
				if !remaining[sel] {
					sess.RemoveSelection(sel)
					pruned = true
				}
			}
			if pruned {
				if err := p.sessions.Save(ctx, sess); err != nil {
					p.logger.Error(ctx, "failed to prune stale selection", err)
				}
			}
		}

		if len(view.channels) == 0 {
			if err := p.telegram.DeleteMessage(ctx, user.TelegramID, *recipient.MessageID); err != nil {
				p.logger.Error(ctx, "failed to delete exhausted offer message", err)
			}
			continue
		}

		selected := make(map[uuid.UUID]bool, len(sess.Selections))
		if sess.OfferID != nil && *sess.OfferID == offerID {
			for _, sel := range sess.Selections {
				selected[sel.ChannelID] = true
			}
		}
		keyboard := offerKeyboard(offerID, view.channels, view.tariffs, selected)
		if err := p.telegram.EditReplyMarkup(ctx, user.TelegramID, *recipient.MessageID, keyboard); err != nil {
			p.logger.Error(ctx, "failed to refresh offer keyboard", err)
		}
	}
	return nil
}
