package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"adtel/internal/jobs"
	"adtel/internal/observability"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ShotReceiver stamps a screenshot proof onto a post.
type ShotReceiver interface {
	ReceiveShot(ctx context.Context, fileID string, postID uuid.UUID) error
}

// ShotWorker handles screenshot intake jobs
type ShotWorker struct {
	receiver ShotReceiver
	logger   *observability.Logger
}

// NewShotWorker creates a new shot worker
func NewShotWorker(receiver ShotReceiver, logger *observability.Logger) *ShotWorker {
	return &ShotWorker{receiver: receiver, logger: logger}
}

// ProcessShotTask attaches the proof and samples views when missing
func (w *ShotWorker) ProcessShotTask(ctx context.Context, task *asynq.Task) error {
	var payload jobs.ShotProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error(ctx, "failed to unmarshal shot process payload", err)
		return fmt.Errorf("failed to unmarshal shot process payload: %w", err)
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "post_id", Value: payload.PostID})
	return w.receiver.ReceiveShot(ctx, payload.FileID, payload.PostID)
}
