package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"adtel/internal/clients/telegram"
	"adtel/internal/jobs"
	"adtel/internal/observability"
	"adtel/internal/store"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// MediaStore is the persistence surface of the media warm-up.
type MediaStore interface {
	ListContentFiles(ctx context.Context, contentID uuid.UUID) ([]store.ContentFile, error)
	UpdateContentFileTelegramID(ctx context.Context, id uuid.UUID, fileID string) error
}

// MediaWorker uploads content files to the view channel once so renders can
// reuse the platform-assigned file ids instead of re-uploading per channel.
type MediaWorker struct {
	store      MediaStore
	telegram   telegram.Client
	warmChatID int64
	logger     *observability.Logger
}

// NewMediaWorker creates a new media worker
func NewMediaWorker(st MediaStore, tg telegram.Client, warmChatID int64, logger *observability.Logger) *MediaWorker {
	return &MediaWorker{store: st, telegram: tg, warmChatID: warmChatID, logger: logger}
}

// ProcessMediaWarmTask uploads every file of a content that has no cached
// file id yet. The warm-up message is deleted right after; only the id is
// kept.
func (w *MediaWorker) ProcessMediaWarmTask(ctx context.Context, task *asynq.Task) error {
	var payload jobs.MediaWarmPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error(ctx, "failed to unmarshal media warm payload", err)
		return fmt.Errorf("failed to unmarshal media warm payload: %w", err)
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "content_id", Value: payload.ContentID})

	files, err := w.store.ListContentFiles(ctx, payload.ContentID)
	if err != nil {
		return fmt.Errorf("failed to list content files: %w", err)
	}
	for _, f := range files {
		if f.TelegramFileID != nil && *f.TelegramFileID != "" {
			continue
		}
		msg, sent, err := w.telegram.SendFile(ctx, w.warmChatID, f.FileType, telegram.FileRef{URL: f.FileRef}, "", telegram.SendOptions{})
		if err != nil {
			w.logger.Error(ctx, "failed to warm content file", err)
			return fmt.Errorf("failed to warm content file: %w", err)
		}
		if sent.FileID != "" {
			if err := w.store.UpdateContentFileTelegramID(ctx, f.ID, sent.FileID); err != nil {
				return err
			}
		}
		if err := w.telegram.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
			w.logger.InfoWithError(ctx, "failed to delete warm-up message", err)
		}
	}
	return nil
}
