package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateShortLinkParams represents a freshly minted tracked redirect.
type CreateShortLinkParams struct {
	LinkID       uuid.UUID
	AssignmentID *uuid.UUID
	ExternalID   string
	ShortURL     string
}

const sqlCreateShortLink = `
INSERT INTO short_links (link_id, assignment_id, external_id, short_url)
VALUES ($1, $2, $3, $4)
RETURNING id, link_id, assignment_id, external_id, short_url, created_at
`

// CreateShortLink records one minted short link.
func (s *Store) CreateShortLink(ctx context.Context, params CreateShortLinkParams) (ShortLink, error) {
	var link ShortLink
	err := s.db.GetContext(ctx, &link, sqlCreateShortLink,
		params.LinkID, params.AssignmentID, params.ExternalID, params.ShortURL)
	if err != nil {
		s.logger.Error(ctx, "failed to create short link", err)
		return ShortLink{}, fmt.Errorf("failed to create short link: %w", err)
	}
	return link, nil
}

const sqlLinkPostShortLink = `
INSERT INTO post_short_links (post_id, short_link_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

// LinkPostShortLinks attributes minted short links to the post carrying them.
func (s *Store) LinkPostShortLinks(ctx context.Context, postID uuid.UUID, shortLinkIDs []uuid.UUID) error {
	for _, id := range shortLinkIDs {
		if _, err := s.db.ExecContext(ctx, sqlLinkPostShortLink, postID, id); err != nil {
			s.logger.Error(ctx, "failed to link post short link", err)
			return fmt.Errorf("failed to link post short link: %w", err)
		}
	}
	return nil
}

const sqlListActiveShortLinks = `
SELECT sl.id, sl.link_id, sl.assignment_id, sl.external_id, sl.short_url, sl.created_at
FROM short_links sl
JOIN content_links cl ON cl.id = sl.link_id
JOIN contents ct ON ct.id = cl.content_id
JOIN campaigns c ON c.id = ct.campaign_id
WHERE c.status = 'approved'
ORDER BY sl.id
`

// ListActiveShortLinks returns short links belonging to still-open campaigns,
// the population the hit-count poll walks.
func (s *Store) ListActiveShortLinks(ctx context.Context) ([]ShortLink, error) {
	var links []ShortLink
	err := s.db.SelectContext(ctx, &links, sqlListActiveShortLinks)
	if err != nil {
		s.logger.Error(ctx, "failed to list active short links", err)
		return nil, fmt.Errorf("failed to list active short links: %w", err)
	}
	return links, nil
}

const sqlAppendShortLinkLog = `
INSERT INTO short_link_logs (short_link_id, hit_count, ip_count) VALUES ($1, $2, $3)
`

// AppendShortLinkLog appends one hit-counter sample for a short link.
func (s *Store) AppendShortLinkLog(ctx context.Context, shortLinkID uuid.UUID, hitCount, ipCount int64) error {
	_, err := s.db.ExecContext(ctx, sqlAppendShortLinkLog, shortLinkID, hitCount, ipCount)
	if err != nil {
		s.logger.Error(ctx, "failed to append short link log", err)
		return fmt.Errorf("failed to append short link log: %w", err)
	}
	return nil
}
