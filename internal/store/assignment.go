package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// ClaimConflictError reports that a channel in a claim attempt is already
// covered by an existing assignment, naming the winning admin.
type ClaimConflictError struct {
	ChannelID    uuid.UUID
	ChannelTitle string
	WinnerName   string
}

func (e *ClaimConflictError) Error() string {
	return fmt.Sprintf("channel %s already claimed by %s", e.ChannelTitle, e.WinnerName)
}

// ClaimChannelsParams represents one admin's confirmed working set. The
// payout account is the one shared by every selected channel; its sheba is
// snapshotted onto the assignment.
type ClaimChannelsParams struct {
	CampaignID      uuid.UUID
	UserID          uuid.UUID
	ChannelIDs      []uuid.UUID
	Tariff          int64
	PayoutAccountID uuid.UUID
}

const sqlLockCampaign = `
SELECT id FROM campaigns WHERE id = $1 FOR UPDATE
`

// Conflict probe, evaluated under the campaign lock. Names the winner so the
// losing admin gets a useful notice.
const sqlFindClaimedChannels = `
SELECT ac.channel_id AS id, ch.title, ch.view_efficiency, 0 AS tariff, ch.payout_account_id
FROM assignment_channels ac
JOIN channels ch ON ch.id = ac.channel_id
WHERE ac.campaign_id = ? AND ac.channel_id IN (?)
LIMIT 1
`

const sqlGetAssignmentWinnerName = `
SELECT COALESCE('@' || NULLIF(u.username, ''), u.first_name)
FROM assignment_channels ac
JOIN assignments a ON a.id = ac.assignment_id
JOIN bot_users u ON u.id = a.user_id
WHERE ac.campaign_id = $1 AND ac.channel_id = $2
`

const sqlGetShebaSnapshot = `
SELECT sheba, title FROM bank_accounts WHERE id = $1
`

const sqlInsertAssignment = `
INSERT INTO assignments (campaign_id, user_id, tariff, sheba_number, sheba_owner)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, campaign_id, user_id, tariff, sheba_number, sheba_owner, receipt_price, receipt_date, receipt_code, paid_at, created_at
`

const sqlInsertAssignmentChannel = `
INSERT INTO assignment_channels (assignment_id, campaign_id, channel_id)
VALUES ($1, $2, $3)
`

// ClaimChannels creates the assignment for one admin's confirmed channel set.
// The transaction takes the campaign row lock first, so competing confirms on
// the same campaign serialize and exactly one wins any contested channel. A
// *ClaimConflictError is returned when a channel is already taken; the unique
// index on (campaign_id, channel_id) backs the same invariant if a writer
// bypasses the lock.
func (s *Store) ClaimChannels(ctx context.Context, params ClaimChannelsParams) (Assignment, error) {
	if len(params.ChannelIDs) == 0 {
		return Assignment{}, errors.New("empty channel set")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin claim transaction", err)
		return Assignment{}, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var lockedID uuid.UUID
	if err := tx.GetContext(ctx, &lockedID, sqlLockCampaign, params.CampaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to lock campaign", err)
		return Assignment{}, fmt.Errorf("failed to lock campaign: %w", err)
	}

	query, args, err := sqlx.In(sqlFindClaimedChannels, params.CampaignID, params.ChannelIDs)
	if err != nil {
		return Assignment{}, fmt.Errorf("failed to expand channel id list: %w", err)
	}
	var claimed EligibleChannel
	err = tx.GetContext(ctx, &claimed, tx.Rebind(query), args...)
	if err == nil {
		var winner string
		if err := tx.GetContext(ctx, &winner, sqlGetAssignmentWinnerName, params.CampaignID, claimed.ID); err != nil {
			s.logger.Error(ctx, "failed to resolve claim winner", err)
		}
		return Assignment{}, &ClaimConflictError{
			ChannelID:    claimed.ID,
			ChannelTitle: claimed.Title,
			WinnerName:   winner,
		}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error(ctx, "failed to check claimed channels", err)
		return Assignment{}, fmt.Errorf("failed to check claimed channels: %w", err)
	}

	var snapshot struct {
		Sheba string `db:"sheba"`
		Title string `db:"title"`
	}
	if err := tx.GetContext(ctx, &snapshot, sqlGetShebaSnapshot, params.PayoutAccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to snapshot payout account", err)
		return Assignment{}, fmt.Errorf("failed to snapshot payout account: %w", err)
	}

	var assignment Assignment
	err = tx.GetContext(ctx, &assignment, sqlInsertAssignment,
		params.CampaignID, params.UserID, params.Tariff, snapshot.Sheba, snapshot.Title)
	if err != nil {
		s.logger.Error(ctx, "failed to insert assignment", err)
		return Assignment{}, fmt.Errorf("failed to insert assignment: %w", err)
	}
	for _, channelID := range params.ChannelIDs {
		_, err = tx.ExecContext(ctx, sqlInsertAssignmentChannel, assignment.ID, params.CampaignID, channelID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return Assignment{}, &ClaimConflictError{ChannelID: channelID}
			}
			s.logger.Error(ctx, "failed to insert assignment channel", err)
			return Assignment{}, fmt.Errorf("failed to insert assignment channel: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit claim", err)
		return Assignment{}, fmt.Errorf("failed to commit claim: %w", err)
	}
	return assignment, nil
}

const sqlGetAssignmentByID = `
SELECT id, campaign_id, user_id, tariff, sheba_number, sheba_owner, receipt_price, receipt_date, receipt_code, paid_at, created_at
FROM assignments
WHERE id = $1
`

// GetAssignmentByID fetches a single assignment.
func (s *Store) GetAssignmentByID(ctx context.Context, id uuid.UUID) (Assignment, error) {
	var assignment Assignment
	err := s.db.GetContext(ctx, &assignment, sqlGetAssignmentByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get assignment", err)
		return Assignment{}, fmt.Errorf("failed to get assignment: %w", err)
	}
	return assignment, nil
}

const sqlListAssignmentChannels = `
SELECT ch.id, ch.title, ch.username, ch.telegram_id, ch.member_count, ch.view_efficiency, ch.payout_account_id, ch.created_at
FROM assignment_channels ac
JOIN channels ch ON ch.id = ac.channel_id
WHERE ac.assignment_id = $1
ORDER BY ch.id
`

// ListAssignmentChannels returns the channels won under one assignment.
func (s *Store) ListAssignmentChannels(ctx context.Context, assignmentID uuid.UUID) ([]Channel, error) {
	var channels []Channel
	err := s.db.SelectContext(ctx, &channels, sqlListAssignmentChannels, assignmentID)
	if err != nil {
		s.logger.Error(ctx, "failed to list assignment channels", err)
		return nil, fmt.Errorf("failed to list assignment channels: %w", err)
	}
	return channels, nil
}

const sqlListAssignmentsByCampaign = `
SELECT id, campaign_id, user_id, tariff, sheba_number, sheba_owner, receipt_price, receipt_date, receipt_code, paid_at, created_at
FROM assignments
WHERE campaign_id = $1
ORDER BY created_at
`

// ListAssignmentsByCampaign returns every confirmed claim under a campaign.
func (s *Store) ListAssignmentsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]Assignment, error) {
	var assignments []Assignment
	err := s.db.SelectContext(ctx, &assignments, sqlListAssignmentsByCampaign, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaign assignments", err)
		return nil, fmt.Errorf("failed to list campaign assignments: %w", err)
	}
	return assignments, nil
}

const sqlConfirmedViews = `
SELECT COALESCE(SUM(ch.view_efficiency), 0)
FROM assignment_channels ac
JOIN channels ch ON ch.id = ac.channel_id
WHERE ac.campaign_id = $1
`

// ConfirmedViews sums the view efficiency of every channel already won
// under a campaign.
func (s *Store) ConfirmedViews(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	var views int64
	err := s.db.GetContext(ctx, &views, sqlConfirmedViews, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to sum confirmed views", err)
		return 0, fmt.Errorf("failed to sum confirmed views: %w", err)
	}
	return views, nil
}

const sqlSetAssignmentReceipt = `
UPDATE assignments SET receipt_price = $2, receipt_code = $3, receipt_date = NOW() WHERE id = $1
`

// SetAssignmentReceipt records the computed payout and its receipt stamp for
// one assignment.
func (s *Store) SetAssignmentReceipt(ctx context.Context, id uuid.UUID, price int64, code string) error {
	_, err := s.db.ExecContext(ctx, sqlSetAssignmentReceipt, id, price, code)
	if err != nil {
		s.logger.Error(ctx, "failed to set assignment receipt", err)
		return fmt.Errorf("failed to set assignment receipt: %w", err)
	}
	return nil
}

const sqlMarkAssignmentPaid = `
UPDATE assignments SET paid_at = NOW() WHERE id = $1 AND paid_at IS NULL
`

// MarkAssignmentPaid stamps an assignment as paid out. Returns ErrNotFound
// when already paid or unknown.
func (s *Store) MarkAssignmentPaid(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, sqlMarkAssignmentPaid, id)
	if err != nil {
		s.logger.Error(ctx, "failed to mark assignment paid", err)
		return fmt.Errorf("failed to mark assignment paid: %w", err)
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

const sqlDeleteAssignment = `
DELETE FROM assignments WHERE id = $1
`

// DeleteAssignment removes an invalid assignment together with its channel
// rows (cascade). Used by the pruning job.
func (s *Store) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, sqlDeleteAssignment, id)
	if err != nil {
		s.logger.Error(ctx, "failed to delete assignment", err)
		return fmt.Errorf("failed to delete assignment: %w", err)
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

const sqlListAssignmentsMissingShots = `
SELECT DISTINCT a.id, a.campaign_id, a.user_id, a.tariff, a.sheba_number, a.sheba_owner, a.receipt_price, a.receipt_date, a.receipt_code, a.paid_at, a.created_at
FROM assignments a
JOIN posts p ON p.assignment_id = a.id
WHERE a.campaign_id = $1 AND p.shot_file_id IS NULL AND p.no_shot = false
ORDER BY a.created_at
`

// ListAssignmentsMissingShots returns assignments with at least one post
// still lacking screenshot proof.
func (s *Store) ListAssignmentsMissingShots(ctx context.Context, campaignID uuid.UUID) ([]Assignment, error) {
	var assignments []Assignment
	err := s.db.SelectContext(ctx, &assignments, sqlListAssignmentsMissingShots, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list assignments missing shots", err)
		return nil, fmt.Errorf("failed to list assignments missing shots: %w", err)
	}
	return assignments, nil
}

const sqlListReceiptCandidates = `
SELECT a.id, a.campaign_id, a.user_id, a.tariff, a.sheba_number, a.sheba_owner, a.receipt_price, a.receipt_date, a.receipt_code, a.paid_at, a.created_at
FROM assignments a
JOIN campaigns c ON c.id = a.campaign_id
WHERE a.receipt_price IS NULL AND c.status IN ($1, $2)
ORDER BY a.id
`

// ListReceiptCandidates returns assignments of running or closed campaigns
// that have no receipt yet.
func (s *Store) ListReceiptCandidates(ctx context.Context) ([]Assignment, error) {
	var assignments []Assignment
	err := s.db.SelectContext(ctx, &assignments, sqlListReceiptCandidates,
		CampaignStatusApproved, CampaignStatusClose)
	if err != nil {
		s.logger.Error(ctx, "failed to list receipt candidates", err)
		return nil, fmt.Errorf("failed to list receipt candidates: %w", err)
	}
	return assignments, nil
}

const sqlListInvalidAssignments = `
SELECT a.id, a.campaign_id, a.user_id, a.tariff, a.sheba_number, a.sheba_owner, a.receipt_price, a.receipt_date, a.receipt_code, a.paid_at, a.created_at
FROM assignments a
WHERE a.created_at < $1
  AND (NOT EXISTS (SELECT 1 FROM assignment_channels ac WHERE ac.assignment_id = a.id)
       OR NOT EXISTS (SELECT 1 FROM posts p WHERE p.assignment_id = a.id))
ORDER BY a.id
`

// ListInvalidAssignments returns assignments old enough to have been
// rendered that still carry no channels or no posts. Freshly claimed
// assignments are excluded by the cutoff so an in-flight render is never
// mistaken for a broken one.
func (s *Store) ListInvalidAssignments(ctx context.Context, cutoff time.Time) ([]Assignment, error) {
	var assignments []Assignment
	err := s.db.SelectContext(ctx, &assignments, sqlListInvalidAssignments, cutoff)
	if err != nil {
		s.logger.Error(ctx, "failed to list invalid assignments", err)
		return nil, fmt.Errorf("failed to list invalid assignments: %w", err)
	}
	return assignments, nil
}

const sqlListUserAssignments = `
SELECT id, campaign_id, user_id, tariff, sheba_number, sheba_owner, receipt_price, receipt_date, receipt_code, paid_at, created_at
FROM assignments
WHERE user_id = $1
ORDER BY created_at DESC
`

// ListUserAssignments returns every claim an admin has confirmed, newest first.
func (s *Store) ListUserAssignments(ctx context.Context, userID uuid.UUID) ([]Assignment, error) {
	var assignments []Assignment
	err := s.db.SelectContext(ctx, &assignments, sqlListUserAssignments, userID)
	if err != nil {
		s.logger.Error(ctx, "failed to list user assignments", err)
		return nil, fmt.Errorf("failed to list user assignments: %w", err)
	}
	return assignments, nil
}
