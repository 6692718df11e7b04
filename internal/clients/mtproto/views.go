package mtproto

import (
	"adtel/internal/config"
	"adtel/internal/observability"
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// ErrChannelNotFound is returned when a username does not resolve to a
// broadcast channel.
var ErrChannelNotFound = errors.New("broadcast channel not found")

// ViewReader reads channel post view counts over MTProto. The Bot API does
// not expose view counters, so the collector runs a user session instead.
type ViewReader struct {
	appID       int
	appHash     string
	sessionFile string
	logger      *observability.Logger
}

// NewViewReader constructs a reader over a previously authorized session
// file.
func NewViewReader(cfg config.TelegramConfig, logger *observability.Logger) *ViewReader {
	return &ViewReader{
		appID:       cfg.AppID,
		appHash:     cfg.AppHash,
		sessionFile: cfg.SessionFile,
		logger:      logger,
	}
}

// MessageViews polls the view counters of a channel's messages, keyed by
// message id. Counters the channel does not report are absent from the map.
func (r *ViewReader) MessageViews(ctx context.Context, channelUsername string, messageIDs []int) (map[int]int64, error) {
	if len(messageIDs) == 0 {
		return map[int]int64{}, nil
	}

	client := telegram.NewClient(r.appID, r.appHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: r.sessionFile},
	})

	views := make(map[int]int64, len(messageIDs))
	err := client.Run(ctx, func(ctx context.Context) error {
		api := tg.NewClient(client)

		resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: channelUsername})
		if err != nil {
			return fmt.Errorf("failed to resolve channel %q: %w", channelUsername, err)
		}
		channel, err := findBroadcastChannel(resolved.GetChats())
		if err != nil {
			return err
		}

		result, err := api.MessagesGetMessagesViews(ctx, &tg.MessagesGetMessagesViewsRequest{
			Peer:      &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash},
			ID:        messageIDs,
			Increment: false,
		})
		if err != nil {
			return fmt.Errorf("failed to get message views: %w", err)
		}

		for i, v := range result.Views {
			if i >= len(messageIDs) {
				break
			}
			if count, ok := v.GetViews(); ok {
				views[messageIDs[i]] = int64(count)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

func findBroadcastChannel(chats []tg.ChatClass) (*tg.Channel, error) {
	for _, peer := range chats {
		if ch, ok := peer.(*tg.Channel); ok {
			if ch.Megagroup {
				continue
			}
			if ch.Broadcast {
				return ch, nil
			}
		}
	}
	return nil, ErrChannelNotFound
}

// IsFloodWait reports whether the error is MTProto flood control. Poll loops
// skip the current item and continue.
func IsFloodWait(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := tgerr.AsFloodWait(err); ok {
		return true
	}
	return false
}
