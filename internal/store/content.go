package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const sqlListCampaignContents = `
SELECT id, campaign_id, ord, view_type, text, is_sticker, post_link, mother_channel_id, message_id, created_at
FROM contents
WHERE campaign_id = $1
ORDER BY ord, id
`

// ListCampaignContents returns a campaign's contents in render order.
func (s *Store) ListCampaignContents(ctx context.Context, campaignID uuid.UUID) ([]Content, error) {
	var contents []Content
	err := s.db.SelectContext(ctx, &contents, sqlListCampaignContents, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaign contents", err)
		return nil, fmt.Errorf("failed to list campaign contents: %w", err)
	}
	return contents, nil
}

const sqlGetContentByID = `
SELECT id, campaign_id, ord, view_type, text, is_sticker, post_link, mother_channel_id, message_id, created_at
FROM contents
WHERE id = $1
`

// GetContentByID fetches a single content.
func (s *Store) GetContentByID(ctx context.Context, id uuid.UUID) (Content, error) {
	var content Content
	err := s.db.GetContext(ctx, &content, sqlGetContentByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Content{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get content", err)
		return Content{}, fmt.Errorf("failed to get content: %w", err)
	}
	return content, nil
}

// The message id of total content is set at most once; later renders forward
// the cached message instead of reposting.
const sqlSetContentMessageID = `
UPDATE contents SET message_id = $2 WHERE id = $1 AND message_id IS NULL
`

// SetContentMessageID persists the first-render message id of a total
// content. Returns ErrNotFound when the id is already set (or the content is
// unknown), so callers can detect a lost first-render race.
func (s *Store) SetContentMessageID(ctx context.Context, id uuid.UUID, messageID int) error {
	result, err := s.db.ExecContext(ctx, sqlSetContentMessageID, id, messageID)
	if err != nil {
		s.logger.Error(ctx, "failed to set content message id", err)
		return fmt.Errorf("failed to set content message id: %w", err)
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

const sqlListContentFiles = `
SELECT id, content_id, file_type, file_ref, telegram_file_id, ord
FROM content_files
WHERE content_id = $1
ORDER BY ord, id
`

// ListContentFiles returns the rotating attachments of a content.
func (s *Store) ListContentFiles(ctx context.Context, contentID uuid.UUID) ([]ContentFile, error) {
	var files []ContentFile
	err := s.db.SelectContext(ctx, &files, sqlListContentFiles, contentID)
	if err != nil {
		s.logger.Error(ctx, "failed to list content files", err)
		return nil, fmt.Errorf("failed to list content files: %w", err)
	}
	return files, nil
}

const sqlUpdateContentFileTelegramID = `
UPDATE content_files SET telegram_file_id = $2 WHERE id = $1
`

// UpdateContentFileTelegramID caches the platform-assigned file handle back
// onto the file record so the next render skips the upload.
func (s *Store) UpdateContentFileTelegramID(ctx context.Context, id uuid.UUID, fileID string) error {
	_, err := s.db.ExecContext(ctx, sqlUpdateContentFileTelegramID, id, fileID)
	if err != nil {
		s.logger.Error(ctx, "failed to update content file telegram id", err)
		return fmt.Errorf("failed to update content file telegram id: %w", err)
	}
	return nil
}

const sqlListContentLinks = `
SELECT id, content_id, url, button_id, utm_source, utm_medium, utm_term, utm_content
FROM content_links
WHERE content_id = $1
ORDER BY id
`

// ListContentLinks returns the tracked links of a content.
func (s *Store) ListContentLinks(ctx context.Context, contentID uuid.UUID) ([]ContentLink, error) {
	var links []ContentLink
	err := s.db.SelectContext(ctx, &links, sqlListContentLinks, contentID)
	if err != nil {
		s.logger.Error(ctx, "failed to list content links", err)
		return nil, fmt.Errorf("failed to list content links: %w", err)
	}
	return links, nil
}

const sqlListContentButtons = `
SELECT id, content_id, text, url, grid_row, grid_col
FROM content_buttons
WHERE content_id = $1
ORDER BY grid_row, grid_col, id
`

// ListContentButtons returns the inline buttons of a content in grid order.
func (s *Store) ListContentButtons(ctx context.Context, contentID uuid.UUID) ([]ContentButton, error) {
	var buttons []ContentButton
	err := s.db.SelectContext(ctx, &buttons, sqlListContentButtons, contentID)
	if err != nil {
		s.logger.Error(ctx, "failed to list content buttons", err)
		return nil, fmt.Errorf("failed to list content buttons: %w", err)
	}
	return buttons, nil
}

const sqlCountPostsForContent = `
SELECT COUNT(*) FROM posts WHERE content_id = $1
`

// CountPostsForContent returns how many posts a content has produced so far.
// The renderer uses count modulo file-count to rotate attachments.
func (s *Store) CountPostsForContent(ctx context.Context, contentID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, sqlCountPostsForContent, contentID)
	if err != nil {
		s.logger.Error(ctx, "failed to count posts for content", err)
		return 0, fmt.Errorf("failed to count posts for content: %w", err)
	}
	return count, nil
}
