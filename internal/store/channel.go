package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const sqlGetChannelByID = `
SELECT id, title, username, telegram_id, member_count, view_efficiency, payout_account_id, created_at
FROM channels
WHERE id = $1
`

// GetChannelByID fetches a single channel.
func (s *Store) GetChannelByID(ctx context.Context, id uuid.UUID) (Channel, error) {
	var channel Channel
	err := s.db.GetContext(ctx, &channel, sqlGetChannelByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Channel{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get channel", err)
		return Channel{}, fmt.Errorf("failed to get channel: %w", err)
	}
	return channel, nil
}

const sqlListChannelsByIDs = `
SELECT id, title, username, telegram_id, member_count, view_efficiency, payout_account_id, created_at
FROM channels
WHERE id IN (?)
ORDER BY id
`

// ListChannelsByIDs fetches a set of channels in stable id order.
func (s *Store) ListChannelsByIDs(ctx context.Context, ids []uuid.UUID) ([]Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(sqlListChannelsByIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to expand channel id list: %w", err)
	}
	var channels []Channel
	err = s.db.SelectContext(ctx, &channels, s.db.Rebind(query), args...)
	if err != nil {
		s.logger.Error(ctx, "failed to list channels", err)
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// Eligible channels are campaign publishers not yet won for the campaign and
// not referenced by any open offer for it. Ascending id keeps the greedy
// budget walk stable across sweeps.
const sqlListEligibleChannels = `
SELECT ch.id, ch.title, ch.view_efficiency, cp.tariff, ch.payout_account_id
FROM campaign_publishers cp
JOIN channels ch ON ch.id = cp.channel_id
WHERE cp.campaign_id = $1
  AND NOT EXISTS (
      SELECT 1 FROM assignment_channels ac
      WHERE ac.campaign_id = cp.campaign_id AND ac.channel_id = ch.id
  )
  AND NOT EXISTS (
      SELECT 1
      FROM push_offer_channels poc
      JOIN push_offers po ON po.id = poc.offer_id
      WHERE po.campaign_id = cp.campaign_id
        AND po.status = 'sent'
        AND poc.channel_id = ch.id
  )
ORDER BY ch.id
`

// ListEligibleChannels returns channels still open for allocation under a
// campaign, with their configured tariff.
func (s *Store) ListEligibleChannels(ctx context.Context, campaignID uuid.UUID) ([]EligibleChannel, error) {
	var channels []EligibleChannel
	err := s.db.SelectContext(ctx, &channels, sqlListEligibleChannels, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list eligible channels", err)
		return nil, fmt.Errorf("failed to list eligible channels: %w", err)
	}
	return channels, nil
}

const sqlListChannelAdmins = `
SELECT u.id, u.telegram_id, u.username, u.first_name, u.created_at
FROM channel_admins ca
JOIN bot_users u ON u.id = ca.user_id
WHERE ca.channel_id = $1
ORDER BY u.id
`

// ListChannelAdmins returns the owning-admin set of a channel in stable order.
func (s *Store) ListChannelAdmins(ctx context.Context, channelID uuid.UUID) ([]BotUser, error) {
	var users []BotUser
	err := s.db.SelectContext(ctx, &users, sqlListChannelAdmins, channelID)
	if err != nil {
		s.logger.Error(ctx, "failed to list channel admins", err)
		return nil, fmt.Errorf("failed to list channel admins: %w", err)
	}
	return users, nil
}

const sqlGetPayoutAccount = `
SELECT b.id, b.owner_id, b.sheba, b.title, b.created_at
FROM bank_accounts b
JOIN channels ch ON ch.payout_account_id = b.id
WHERE ch.id = $1
`

// GetPayoutAccount returns the bank account a channel is paid through.
func (s *Store) GetPayoutAccount(ctx context.Context, channelID uuid.UUID) (BankAccount, error) {
	var account BankAccount
	err := s.db.GetContext(ctx, &account, sqlGetPayoutAccount, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BankAccount{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get payout account", err)
		return BankAccount{}, fmt.Errorf("failed to get payout account: %w", err)
	}
	return account, nil
}

const sqlCreateBankAccount = `
INSERT INTO bank_accounts (owner_id, sheba, title)
VALUES ($1, $2, $3)
RETURNING id, owner_id, sheba, title, created_at
`

// CreateBankAccount records a payout account for a channel being registered.
func (s *Store) CreateBankAccount(ctx context.Context, ownerID uuid.UUID, sheba, title string) (BankAccount, error) {
	var account BankAccount
	err := s.db.GetContext(ctx, &account, sqlCreateBankAccount, ownerID, sheba, title)
	if err != nil {
		s.logger.Error(ctx, "failed to create bank account", err)
		return BankAccount{}, fmt.Errorf("failed to create bank account: %w", err)
	}
	return account, nil
}

const sqlExchangeBankAccount = `
UPDATE channels SET payout_account_id = $2 WHERE payout_account_id = $1
`

// ExchangeBankAccount repoints every channel paying out to fromID at toID.
// Unpaid assignments follow automatically because payout resolves through
// the channel's account at pay time.
func (s *Store) ExchangeBankAccount(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, sqlExchangeBankAccount, fromID, toID)
	if err != nil {
		s.logger.Error(ctx, "failed to exchange bank account", err)
		return 0, fmt.Errorf("failed to exchange bank account: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count exchanged channels: %w", err)
	}
	return moved, nil
}

const sqlListUserChannels = `
SELECT ch.id, ch.title, ch.username, ch.telegram_id, ch.member_count, ch.view_efficiency, ch.payout_account_id, ch.created_at
FROM channel_admins ca
JOIN channels ch ON ch.id = ca.channel_id
WHERE ca.user_id = $1
ORDER BY ch.id
`

// ListUserChannels returns the channels an admin manages.
func (s *Store) ListUserChannels(ctx context.Context, userID uuid.UUID) ([]Channel, error) {
	var channels []Channel
	err := s.db.SelectContext(ctx, &channels, sqlListUserChannels, userID)
	if err != nil {
		s.logger.Error(ctx, "failed to list user channels", err)
		return nil, fmt.Errorf("failed to list user channels: %w", err)
	}
	return channels, nil
}

const sqlGetChannelByTelegramID = `
SELECT id, title, username, telegram_id, member_count, view_efficiency, payout_account_id, created_at
FROM channels
WHERE telegram_id = $1
`

// GetChannelByTelegramID resolves a channel by its chat id.
func (s *Store) GetChannelByTelegramID(ctx context.Context, telegramID int64) (Channel, error) {
	var channel Channel
	err := s.db.GetContext(ctx, &channel, sqlGetChannelByTelegramID, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Channel{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get channel by telegram id", err)
		return Channel{}, fmt.Errorf("failed to get channel by telegram id: %w", err)
	}
	return channel, nil
}

// CreateChannelParams represents a channel being registered by its admin.
type CreateChannelParams struct {
	Title           string
	Username        *string
	TelegramID      int64
	MemberCount     int64
	ViewEfficiency  int64
	PayoutAccountID uuid.UUID
	AdminUserID     uuid.UUID
}

const sqlCreateChannel = `
INSERT INTO channels (title, username, telegram_id, member_count, view_efficiency, payout_account_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, title, username, telegram_id, member_count, view_efficiency, payout_account_id, created_at
`

const sqlAddChannelAdmin = `
INSERT INTO channel_admins (channel_id, user_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

// CreateChannel registers a channel and its first admin in one transaction.
func (s *Store) CreateChannel(ctx context.Context, params CreateChannelParams) (Channel, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Channel{}, fmt.Errorf("failed to begin channel transaction: %w", err)
	}
	defer tx.Rollback()

	var channel Channel
	err = tx.GetContext(ctx, &channel, sqlCreateChannel,
		params.Title, params.Username, params.TelegramID,
		params.MemberCount, params.ViewEfficiency, params.PayoutAccountID)
	if err != nil {
		s.logger.Error(ctx, "failed to create channel", err)
		return Channel{}, fmt.Errorf("failed to create channel: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlAddChannelAdmin, channel.ID, params.AdminUserID); err != nil {
		s.logger.Error(ctx, "failed to add channel admin", err)
		return Channel{}, fmt.Errorf("failed to add channel admin: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Channel{}, fmt.Errorf("failed to commit channel: %w", err)
	}
	return channel, nil
}

// AddChannelAdmin attaches another admin to an existing channel.
func (s *Store) AddChannelAdmin(ctx context.Context, channelID, userID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, sqlAddChannelAdmin, channelID, userID); err != nil {
		s.logger.Error(ctx, "failed to add channel admin", err)
		return fmt.Errorf("failed to add channel admin: %w", err)
	}
	return nil
}

const sqlRemoveChannelAdmin = `
DELETE FROM channel_admins WHERE channel_id = $1 AND user_id = $2
`

// RemoveChannelAdmin detaches an admin from a channel.
func (s *Store) RemoveChannelAdmin(ctx context.Context, channelID, userID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, sqlRemoveChannelAdmin, channelID, userID)
	if err != nil {
		s.logger.Error(ctx, "failed to remove channel admin", err)
		return fmt.Errorf("failed to remove channel admin: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check admin removal: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
