package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const sqlGetCampaignByID = `
SELECT id, title, status, enabled, max_view, post_limit, start_time, end_time, created_at, updated_at
FROM campaigns
WHERE id = $1
`

// GetCampaignByID fetches a single campaign.
func (s *Store) GetCampaignByID(ctx context.Context, id uuid.UUID) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get campaign", err)
		return Campaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

const sqlListOpenCampaigns = `
SELECT c.id, c.title, c.status, c.enabled, c.max_view, c.post_limit, c.start_time, c.end_time, c.created_at, c.updated_at
FROM campaigns c
WHERE c.status = 'approved'
  AND c.enabled = true
  AND (c.start_time IS NULL OR c.start_time <= NOW())
  AND (c.end_time IS NULL OR c.end_time > NOW())
  AND EXISTS (SELECT 1 FROM contents ct WHERE ct.campaign_id = c.id)
ORDER BY c.created_at
`

// ListOpenCampaigns returns approved, enabled, in-window campaigns that have
// at least one content attached. These are the campaigns the allocation
// engine sweeps.
func (s *Store) ListOpenCampaigns(ctx context.Context) ([]Campaign, error) {
	var campaigns []Campaign
	err := s.db.SelectContext(ctx, &campaigns, sqlListOpenCampaigns)
	if err != nil {
		s.logger.Error(ctx, "failed to list open campaigns", err)
		return nil, fmt.Errorf("failed to list open campaigns: %w", err)
	}
	return campaigns, nil
}

const sqlListCampaignsPastEnd = `
SELECT id, title, status, enabled, max_view, post_limit, start_time, end_time, created_at, updated_at
FROM campaigns
WHERE status = 'approved' AND end_time IS NOT NULL AND end_time <= NOW()
`

// ListCampaignsPastEnd returns approved campaigns whose window has elapsed
// and which still await the closing pass.
func (s *Store) ListCampaignsPastEnd(ctx context.Context) ([]Campaign, error) {
	var campaigns []Campaign
	err := s.db.SelectContext(ctx, &campaigns, sqlListCampaignsPastEnd)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaigns past end", err)
		return nil, fmt.Errorf("failed to list campaigns past end: %w", err)
	}
	return campaigns, nil
}

const sqlUpdateCampaignStatus = `
UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1
`

// UpdateCampaignStatus transitions a campaign to a new status.
func (s *Store) UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := s.db.ExecContext(ctx, sqlUpdateCampaignStatus, id, status)
	if err != nil {
		s.logger.Error(ctx, "failed to update campaign status", err)
		return fmt.Errorf("failed to update campaign status: %w", err)
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

const sqlSetCampaignEnabled = `
UPDATE campaigns SET enabled = $2, updated_at = NOW() WHERE id = $1
`

// SetCampaignEnabled flips a campaign's allocation switch. Disabled campaigns
// are skipped by the allocation sweep but keep collecting metrics.
func (s *Store) SetCampaignEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := s.db.ExecContext(ctx, sqlSetCampaignEnabled, id, enabled)
	if err != nil {
		s.logger.Error(ctx, "failed to set campaign enabled", err)
		return fmt.Errorf("failed to set campaign enabled: %w", err)
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

const sqlGetPublisherTariff = `
SELECT tariff FROM campaign_publishers WHERE campaign_id = $1 AND channel_id = $2
`

// GetPublisherTariff returns the price-per-1000-views configured for a
// channel under a campaign.
func (s *Store) GetPublisherTariff(ctx context.Context, campaignID, channelID uuid.UUID) (int64, error) {
	var tariff int64
	err := s.db.GetContext(ctx, &tariff, sqlGetPublisherTariff, campaignID, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get publisher tariff", err)
		return 0, fmt.Errorf("failed to get publisher tariff: %w", err)
	}
	return tariff, nil
}
