package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Job type constants
const (
	// Critical queue: user-facing delivery that must not lag
	TypePushDeliver   = "push:deliver"
	TypePushKeyboards = "push:keyboards"
	TypeShotProcess   = "shot:process"

	// Default queue
	TypePayoutPaidNotice = "payout:paid_notice"

	// Low priority queue
	TypeMediaWarm      = "media:warm"
	TypePayoutReceipts = "payout:receipts"
)

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// PushDeliverPayload fans an offer out to its recipients. UserIDs narrows
// the fan-out to specific admins (re-offers after a partial claim); empty
// means everyone still pending.
type PushDeliverPayload struct {
	OfferID uuid.UUID   `json:"offer_id"`
	UserIDs []uuid.UUID `json:"user_ids,omitempty"`
}

// NewPushDeliverTask creates a push delivery task
func NewPushDeliverTask(payload PushDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePushDeliver, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

// PushKeyboardsPayload refreshes every open offer keyboard after a claim.
type PushKeyboardsPayload struct {
	OfferID       uuid.UUID `json:"offer_id"`
	ExcludeUserID uuid.UUID `json:"exclude_user_id"`
}

// NewPushKeyboardsTask creates a keyboard refresh task
func NewPushKeyboardsTask(payload PushKeyboardsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePushKeyboards, data, asynq.Queue(QueueCritical), asynq.MaxRetry(3)), nil
}

// ShotProcessPayload attaches a screenshot proof to a post.
type ShotProcessPayload struct {
	PostID uuid.UUID `json:"post_id"`
	FileID string    `json:"file_id"`
}

// NewShotProcessTask creates a shot intake task
func NewShotProcessTask(payload ShotProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeShotProcess, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

// MediaWarmPayload uploads a content's files once so later renders reuse the
// cached file ids instead of re-uploading.
type MediaWarmPayload struct {
	ContentID uuid.UUID `json:"content_id"`
}

// NewMediaWarmTask creates a media warm-up task
func NewMediaWarmTask(payload MediaWarmPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMediaWarm, data, asynq.Queue(QueueLow), asynq.MaxRetry(3)), nil
}

// NewPayoutReceiptsTask creates a receipt calculation task
func NewPayoutReceiptsTask() *asynq.Task {
	return asynq.NewTask(TypePayoutReceipts, nil, asynq.Queue(QueueLow), asynq.MaxRetry(3))
}

// PayoutPaidNoticePayload tells one admin their payout went out.
type PayoutPaidNoticePayload struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
}

// NewPayoutPaidNoticeTask creates a paid notice task
func NewPayoutPaidNoticeTask(payload PayoutPaidNoticePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePayoutPaidNotice, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
