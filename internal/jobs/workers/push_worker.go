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

// OfferProcessor is the push lifecycle surface the worker drives.
type OfferProcessor interface {
	Deliver(ctx context.Context, offerID uuid.UUID, onlyUserIDs ...uuid.UUID) error
	RefreshKeyboards(ctx context.Context, offerID uuid.UUID, excludeUserID uuid.UUID) error
}

// PushWorker handles offer delivery and keyboard refresh jobs
type PushWorker struct {
	offers OfferProcessor
	logger *observability.Logger
}

// NewPushWorker creates a new push worker
func NewPushWorker(offers OfferProcessor, logger *observability.Logger) *PushWorker {
	return &PushWorker{offers: offers, logger: logger}
}

// ProcessDeliverTask fans an offer out to its pending recipients
func (w *PushWorker) ProcessDeliverTask(ctx context.Context, task *asynq.Task) error {
	var payload jobs.PushDeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error(ctx, "failed to unmarshal push deliver payload", err)
		return fmt.Errorf("failed to unmarshal push deliver payload: %w", err)
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "offer_id", Value: payload.OfferID})
	return w.offers.Deliver(ctx, payload.OfferID, payload.UserIDs...)
}

// ProcessKeyboardsTask prunes claimed channels from the other recipients'
// keyboards after a claim
func (w *PushWorker) ProcessKeyboardsTask(ctx context.Context, task *asynq.Task) error {
	var payload jobs.PushKeyboardsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error(ctx, "failed to unmarshal push keyboards payload", err)
		return fmt.Errorf("failed to unmarshal push keyboards payload: %w", err)
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "offer_id", Value: payload.OfferID})
	return w.offers.RefreshKeyboards(ctx, payload.OfferID, payload.ExcludeUserID)
}
