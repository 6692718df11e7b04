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

// Payouts is the receipt/notification surface the worker drives.
type Payouts interface {
	CalculateReceipts(ctx context.Context) error
	SendPaidNotice(ctx context.Context, assignmentID uuid.UUID) error
}

// PayoutWorker handles receipt calculation and paid notice jobs
type PayoutWorker struct {
	payouts Payouts
	logger  *observability.Logger
}

// NewPayoutWorker creates a new payout worker
func NewPayoutWorker(payouts Payouts, logger *observability.Logger) *PayoutWorker {
	return &PayoutWorker{payouts: payouts, logger: logger}
}

// ProcessReceiptsTask prices every assignment whose views have settled
func (w *PayoutWorker) ProcessReceiptsTask(ctx context.Context, _ *asynq.Task) error {
	return w.payouts.CalculateReceipts(ctx)
}

// ProcessPaidNoticeTask tells one admin their payout went out
func (w *PayoutWorker) ProcessPaidNoticeTask(ctx context.Context, task *asynq.Task) error {
	var payload jobs.PayoutPaidNoticePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error(ctx, "failed to unmarshal paid notice payload", err)
		return fmt.Errorf("failed to unmarshal paid notice payload: %w", err)
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "assignment_id", Value: payload.AssignmentID})
	return w.payouts.SendPaidNotice(ctx, payload.AssignmentID)
}
