package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const sqlGetUserByID = `
SELECT id, telegram_id, username, first_name, sticker_file_id, created_at
FROM bot_users
WHERE id = $1
`

// GetUserByID fetches a single bot user.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (BotUser, error) {
	var user BotUser
	err := s.db.GetContext(ctx, &user, sqlGetUserByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BotUser{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get user", err)
		return BotUser{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

const sqlGetUserByTelegramID = `
SELECT id, telegram_id, username, first_name, sticker_file_id, created_at
FROM bot_users
WHERE telegram_id = $1
`

// GetUserByTelegramID resolves an incoming update's sender.
func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (BotUser, error) {
	var user BotUser
	err := s.db.GetContext(ctx, &user, sqlGetUserByTelegramID, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BotUser{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get user by telegram id", err)
		return BotUser{}, fmt.Errorf("failed to get user by telegram id: %w", err)
	}
	return user, nil
}

// UpsertUserParams represents the identity fields carried by an update.
type UpsertUserParams struct {
	TelegramID int64
	Username   *string
	FirstName  string
}

const sqlUpsertUser = `
INSERT INTO bot_users (telegram_id, username, first_name)
VALUES ($1, $2, $3)
ON CONFLICT (telegram_id) DO UPDATE SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
RETURNING id, telegram_id, username, first_name, sticker_file_id, created_at
`

// UpsertUser registers or refreshes the sender of an update.
func (s *Store) UpsertUser(ctx context.Context, params UpsertUserParams) (BotUser, error) {
	var user BotUser
	err := s.db.GetContext(ctx, &user, sqlUpsertUser, params.TelegramID, params.Username, params.FirstName)
	if err != nil {
		s.logger.Error(ctx, "failed to upsert user", err)
		return BotUser{}, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

const sqlSetUserSticker = `
UPDATE bot_users SET sticker_file_id = $2 WHERE id = $1
`

// SetUserSticker records the sticker a publisher registered for sticker contents.
func (s *Store) SetUserSticker(ctx context.Context, userID uuid.UUID, fileID string) error {
	result, err := s.db.ExecContext(ctx, sqlSetUserSticker, userID, fileID)
	if err != nil {
		s.logger.Error(ctx, "failed to set user sticker", err)
		return fmt.Errorf("failed to set user sticker: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check sticker update: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
