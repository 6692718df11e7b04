package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redisclient "adtel/internal/clients/redis"
	"adtel/internal/observability"
)

const (
	keyPrefix  = "session:"
	sessionTTL = 24 * time.Hour
)

// Store persists conversation sessions between bot updates.
type Store interface {
	// Get returns the session for a telegram user, or a fresh idle session
	// when none exists.
	Get(ctx context.Context, telegramID int64) (Session, error)
	// Save persists the session, stamping UpdatedAt.
	Save(ctx context.Context, sess Session) error
	// Clear removes the session.
	Clear(ctx context.Context, telegramID int64) error
	// ListActive returns every persisted session. Allocation uses this to
	// count views soft-held by in-flight selections.
	ListActive(ctx context.Context) ([]Session, error)
}

// RedisStore is the redis-backed Store.
type RedisStore struct {
	redis  *redisclient.Client
	logger *observability.Logger
}

// NewRedisStore creates a redis-backed session store.
func NewRedisStore(redis *redisclient.Client, logger *observability.Logger) *RedisStore {
	return &RedisStore{redis: redis, logger: logger}
}

func sessionKey(telegramID int64) string {
	return keyPrefix + strconv.FormatInt(telegramID, 10)
}

func (s *RedisStore) Get(ctx context.Context, telegramID int64) (Session, error) {
	raw, err := s.redis.Get(ctx, sessionKey(telegramID))
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return Session{TelegramID: telegramID, State: StateIdle}, nil
		}
		s.logger.Error(ctx, "failed to read session", err)
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		// A corrupt session is unrecoverable; start the user over.
		s.logger.Error(ctx, "failed to decode session, resetting", err)
		return Session{TelegramID: telegramID, State: StateIdle}, nil
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess Session) error {
	sess.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.TelegramID), string(raw), sessionTTL); err != nil {
		s.logger.Error(ctx, "failed to save session", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, telegramID int64) error {
	if err := s.redis.Del(ctx, sessionKey(telegramID)); err != nil {
		s.logger.Error(ctx, "failed to clear session", err)
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *RedisStore) ListActive(ctx context.Context) ([]Session, error) {
	keys, err := s.redis.Keys(ctx, keyPrefix+"*")
	if err != nil {
		s.logger.Error(ctx, "failed to list session keys", err)
		return nil, fmt.Errorf("failed to list session keys: %w", err)
	}

	sessions := make([]Session, 0, len(keys))
	for _, key := range keys {
		raw, err := s.redis.Get(ctx, key)
		if err != nil {
			if errors.Is(err, redisclient.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to read session %s: %w", key, err)
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			s.logger.Error(ctx, "skipping corrupt session "+strings.TrimPrefix(key, keyPrefix), err)
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
