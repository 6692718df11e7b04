package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePushOfferParams represents parameters for creating a push offer with
// its candidate channels and recipient admins.
type CreatePushOfferParams struct {
	CampaignID uuid.UUID
	ChannelIDs []uuid.UUID
	UserIDs    []uuid.UUID
}

const sqlCreatePushOffer = `
INSERT INTO push_offers (campaign_id, status)
VALUES ($1, 'sent')
RETURNING id, campaign_id, status, created_at, updated_at
`

const sqlInsertPushOfferChannel = `
INSERT INTO push_offer_channels (offer_id, channel_id) VALUES ($1, $2)
`

const sqlInsertPushOfferRecipient = `
INSERT INTO push_offer_recipients (offer_id, user_id, status)
VALUES ($1, $2, 'sent')
`

// CreatePushOffer creates an offer together with its channel set and one
// recipient row per admin, in a single transaction.
func (s *Store) CreatePushOffer(ctx context.Context, params CreatePushOfferParams) (PushOffer, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return PushOffer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var offer PushOffer
	if err := tx.GetContext(ctx, &offer, sqlCreatePushOffer, params.CampaignID); err != nil {
		s.logger.Error(ctx, "failed to create push offer", err)
		return PushOffer{}, fmt.Errorf("failed to create push offer: %w", err)
	}
	for _, channelID := range params.ChannelIDs {
		if _, err := tx.ExecContext(ctx, sqlInsertPushOfferChannel, offer.ID, channelID); err != nil {
			s.logger.Error(ctx, "failed to attach offer channel", err)
			return PushOffer{}, fmt.Errorf("failed to attach offer channel: %w", err)
		}
	}
	for _, userID := range params.UserIDs {
		if _, err := tx.ExecContext(ctx, sqlInsertPushOfferRecipient, offer.ID, userID); err != nil {
			s.logger.Error(ctx, "failed to attach offer recipient", err)
			return PushOffer{}, fmt.Errorf("failed to attach offer recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit push offer", err)
		return PushOffer{}, fmt.Errorf("failed to commit push offer: %w", err)
	}
	return offer, nil
}

const sqlGetPushOfferByID = `
SELECT id, campaign_id, status, created_at, updated_at
FROM push_offers
WHERE id = $1
`

// GetPushOfferByID fetches a single offer.
func (s *Store) GetPushOfferByID(ctx context.Context, id uuid.UUID) (PushOffer, error) {
	var offer PushOffer
	err := s.db.GetContext(ctx, &offer, sqlGetPushOfferByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PushOffer{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get push offer", err)
		return PushOffer{}, fmt.Errorf("failed to get push offer: %w", err)
	}
	return offer, nil
}

const sqlListOfferChannelIDs = `
SELECT channel_id FROM push_offer_channels WHERE offer_id = $1 ORDER BY channel_id
`

// ListOfferChannelIDs returns the candidate channel set of an offer.
func (s *Store) ListOfferChannelIDs(ctx context.Context, offerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, sqlListOfferChannelIDs, offerID)
	if err != nil {
		s.logger.Error(ctx, "failed to list offer channels", err)
		return nil, fmt.Errorf("failed to list offer channels: %w", err)
	}
	return ids, nil
}

// Channels of an offer that no assignment covers yet. The claim join keeps
// the remaining set strictly shrinking across re-offer rounds.
const sqlListOfferRemainingChannelIDs = `
SELECT poc.channel_id
FROM push_offer_channels poc
JOIN push_offers po ON po.id = poc.offer_id
WHERE poc.offer_id = $1
  AND NOT EXISTS (
      SELECT 1 FROM assignment_channels ac
      WHERE ac.campaign_id = po.campaign_id AND ac.channel_id = poc.channel_id
  )
ORDER BY poc.channel_id
`

// ListOfferRemainingChannelIDs returns the offer's channels still unclaimed
// under the offer's campaign.
func (s *Store) ListOfferRemainingChannelIDs(ctx context.Context, offerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, sqlListOfferRemainingChannelIDs, offerID)
	if err != nil {
		s.logger.Error(ctx, "failed to list remaining offer channels", err)
		return nil, fmt.Errorf("failed to list remaining offer channels: %w", err)
	}
	return ids, nil
}

const sqlListOfferRecipients = `
SELECT id, offer_id, user_id, message_id, status, created_at
FROM push_offer_recipients
WHERE offer_id = $1
ORDER BY id
`

// ListOfferRecipients returns every per-admin delivery record of an offer.
func (s *Store) ListOfferRecipients(ctx context.Context, offerID uuid.UUID) ([]PushOfferRecipient, error) {
	var recipients []PushOfferRecipient
	err := s.db.SelectContext(ctx, &recipients, sqlListOfferRecipients, offerID)
	if err != nil {
		s.logger.Error(ctx, "failed to list offer recipients", err)
		return nil, fmt.Errorf("failed to list offer recipients: %w", err)
	}
	return recipients, nil
}

const sqlGetOfferRecipient = `
SELECT id, offer_id, user_id, message_id, status, created_at
FROM push_offer_recipients
WHERE offer_id = $1 AND user_id = $2
`

// GetOfferRecipient fetches one admin's delivery record for an offer.
func (s *Store) GetOfferRecipient(ctx context.Context, offerID, userID uuid.UUID) (PushOfferRecipient, error) {
	var recipient PushOfferRecipient
	err := s.db.GetContext(ctx, &recipient, sqlGetOfferRecipient, offerID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PushOfferRecipient{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get offer recipient", err)
		return PushOfferRecipient{}, fmt.Errorf("failed to get offer recipient: %w", err)
	}
	return recipient, nil
}

const sqlSetRecipientMessageID = `
UPDATE push_offer_recipients SET message_id = $2 WHERE id = $1
`

// SetRecipientMessageID records the outbound offer message id once the
// message is actually posted.
func (s *Store) SetRecipientMessageID(ctx context.Context, id uuid.UUID, messageID int) error {
	_, err := s.db.ExecContext(ctx, sqlSetRecipientMessageID, id, messageID)
	if err != nil {
		s.logger.Error(ctx, "failed to set recipient message id", err)
		return fmt.Errorf("failed to set recipient message id: %w", err)
	}
	return nil
}

const sqlSetRecipientStatus = `
UPDATE push_offer_recipients SET status = $2 WHERE id = $1
`

// SetRecipientStatus updates one recipient's delivery state.
func (s *Store) SetRecipientStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx, sqlSetRecipientStatus, id, status)
	if err != nil {
		s.logger.Error(ctx, "failed to set recipient status", err)
		return fmt.Errorf("failed to set recipient status: %w", err)
	}
	return nil
}

// Offers only leave SENT once; terminal states are dead ends.
const sqlSetOfferStatus = `
UPDATE push_offers SET status = $2, updated_at = NOW() WHERE id = $1 AND status = 'sent'
`

// SetOfferStatus transitions an offer out of SENT. Returns ErrNotFound when
// the offer is unknown or already terminal, which callers treat as a lost
// race rather than an error.
func (s *Store) SetOfferStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := s.db.ExecContext(ctx, sqlSetOfferStatus, id, status)
	if err != nil {
		s.logger.Error(ctx, "failed to set offer status", err)
		return fmt.Errorf("failed to set offer status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlListStaleOffers = `
SELECT id, campaign_id, status, created_at, updated_at
FROM push_offers
WHERE status = 'sent' AND created_at <= $1
ORDER BY created_at
`

// ListStaleOffers returns open offers created at or before the cutoff. The
// expiry sweep transitions them to EXPIRED.
func (s *Store) ListStaleOffers(ctx context.Context, cutoff time.Time) ([]PushOffer, error) {
	var offers []PushOffer
	err := s.db.SelectContext(ctx, &offers, sqlListStaleOffers, cutoff)
	if err != nil {
		s.logger.Error(ctx, "failed to list stale offers", err)
		return nil, fmt.Errorf("failed to list stale offers: %w", err)
	}
	return offers, nil
}

const sqlListOpenOffersForChannel = `
SELECT DISTINCT po.id, po.campaign_id, po.status, po.created_at, po.updated_at
FROM push_offers po
JOIN push_offer_channels poc ON poc.offer_id = po.id
WHERE po.campaign_id = $1 AND po.status IN ('sent', 'received') AND poc.channel_id = $2
`

// ListOpenOffersForChannel returns offers under a campaign whose channel set
// includes the given channel and whose keyboards may still be live. A
// received offer counts: its re-delivered remainder stays selectable. Used
// to refresh other admins' keyboards after a claim makes their working sets
// stale.
func (s *Store) ListOpenOffersForChannel(ctx context.Context, campaignID, channelID uuid.UUID) ([]PushOffer, error) {
	var offers []PushOffer
	err := s.db.SelectContext(ctx, &offers, sqlListOpenOffersForChannel, campaignID, channelID)
	if err != nil {
		s.logger.Error(ctx, "failed to list open offers for channel", err)
		return nil, fmt.Errorf("failed to list open offers for channel: %w", err)
	}
	return offers, nil
}
