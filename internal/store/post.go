package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePostParams represents a freshly rendered message instance.
type CreatePostParams struct {
	AssignmentID uuid.UUID
	ContentID    uuid.UUID
	ChannelID    uuid.UUID
	MessageID    int
}

const sqlCreatePost = `
INSERT INTO posts (assignment_id, content_id, channel_id, message_id)
VALUES ($1, $2, $3, $4)
RETURNING id, assignment_id, content_id, channel_id, message_id, views, shot_file_id, shot_at, no_shot, created_at
`

// CreatePost records one rendered message.
func (s *Store) CreatePost(ctx context.Context, params CreatePostParams) (Post, error) {
	var post Post
	err := s.db.GetContext(ctx, &post, sqlCreatePost,
		params.AssignmentID, params.ContentID, params.ChannelID, params.MessageID)
	if err != nil {
		s.logger.Error(ctx, "failed to create post", err)
		return Post{}, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

const sqlGetPostByID = `
SELECT id, assignment_id, content_id, channel_id, message_id, views, shot_file_id, shot_at, no_shot, created_at
FROM posts
WHERE id = $1
`

// GetPostByID fetches a single post.
func (s *Store) GetPostByID(ctx context.Context, id uuid.UUID) (Post, error) {
	var post Post
	err := s.db.GetContext(ctx, &post, sqlGetPostByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get post", err)
		return Post{}, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// Posts of open campaigns are the polling population, grouped by content so
// the per-cycle view cache lines up.
const sqlListPollablePosts = `
SELECT p.id, p.assignment_id, p.content_id, p.channel_id, p.message_id, p.views, p.shot_file_id, p.shot_at, p.no_shot, p.created_at
FROM posts p
JOIN assignments a ON a.id = p.assignment_id
JOIN campaigns c ON c.id = a.campaign_id
WHERE c.status = 'approved'
ORDER BY p.content_id, p.id
`

// ListPollablePosts returns every post whose campaign is still open.
func (s *Store) ListPollablePosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, sqlListPollablePosts)
	if err != nil {
		s.logger.Error(ctx, "failed to list pollable posts", err)
		return nil, fmt.Errorf("failed to list pollable posts: %w", err)
	}
	return posts, nil
}

const sqlListPostsByCampaign = `
SELECT p.id, p.assignment_id, p.content_id, p.channel_id, p.message_id, p.views, p.shot_file_id, p.shot_at, p.no_shot, p.created_at
FROM posts p
JOIN assignments a ON a.id = p.assignment_id
WHERE a.campaign_id = $1
ORDER BY p.content_id, p.id
`

// ListPostsByCampaign returns every post rendered under a campaign.
func (s *Store) ListPostsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, sqlListPostsByCampaign, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaign posts", err)
		return nil, fmt.Errorf("failed to list campaign posts: %w", err)
	}
	return posts, nil
}

const sqlUpdatePostViews = `
UPDATE posts SET views = $2 WHERE id = $1
`

// UpdatePostViews writes the polled view count onto the post.
func (s *Store) UpdatePostViews(ctx context.Context, id uuid.UUID, views int64) error {
	_, err := s.db.ExecContext(ctx, sqlUpdatePostViews, id, views)
	if err != nil {
		s.logger.Error(ctx, "failed to update post views", err)
		return fmt.Errorf("failed to update post views: %w", err)
	}
	return nil
}

const sqlAppendPostViewLog = `
INSERT INTO post_view_logs (post_id, views) VALUES ($1, $2)
`

// AppendPostViewLog appends one time-series sample for a post.
func (s *Store) AppendPostViewLog(ctx context.Context, postID uuid.UUID, views int64) error {
	_, err := s.db.ExecContext(ctx, sqlAppendPostViewLog, postID, views)
	if err != nil {
		s.logger.Error(ctx, "failed to append post view log", err)
		return fmt.Errorf("failed to append post view log: %w", err)
	}
	return nil
}

const sqlSetPostShot = `
UPDATE posts SET shot_file_id = $2, shot_at = NOW() WHERE id = $1
`

// SetPostShot records the screenshot proof submitted for a post.
func (s *Store) SetPostShot(ctx context.Context, id uuid.UUID, fileID string) error {
	_, err := s.db.ExecContext(ctx, sqlSetPostShot, id, fileID)
	if err != nil {
		s.logger.Error(ctx, "failed to set post shot", err)
		return fmt.Errorf("failed to set post shot: %w", err)
	}
	return nil
}

const sqlMarkPostNoShot = `
UPDATE posts SET no_shot = true WHERE id = $1 AND shot_file_id IS NULL
`

// MarkPostNoShot flags a post as permanently missing its screenshot proof.
// No-op when a shot arrived in the meantime.
func (s *Store) MarkPostNoShot(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, sqlMarkPostNoShot, id)
	if err != nil {
		s.logger.Error(ctx, "failed to mark post no shot", err)
		return fmt.Errorf("failed to mark post no shot: %w", err)
	}
	return nil
}

const sqlListPostsMissingShot = `
SELECT p.id, p.assignment_id, p.content_id, p.channel_id, p.message_id, p.views, p.shot_file_id, p.shot_at, p.no_shot, p.created_at
FROM posts p
JOIN assignments a ON a.id = p.assignment_id
WHERE a.campaign_id = $1 AND p.shot_file_id IS NULL AND p.no_shot = false
ORDER BY p.id
`

// ListPostsMissingShot returns posts of a campaign still awaiting proof.
func (s *Store) ListPostsMissingShot(ctx context.Context, campaignID uuid.UUID) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, sqlListPostsMissingShot, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list posts missing shot", err)
		return nil, fmt.Errorf("failed to list posts missing shot: %w", err)
	}
	return posts, nil
}

const sqlListPostsByAssignment = `
SELECT id, assignment_id, content_id, channel_id, message_id, views, shot_file_id, shot_at, no_shot, created_at
FROM posts
WHERE assignment_id = $1
ORDER BY id
`

// ListPostsByAssignment returns the posts rendered for one assignment.
func (s *Store) ListPostsByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, sqlListPostsByAssignment, assignmentID)
	if err != nil {
		s.logger.Error(ctx, "failed to list assignment posts", err)
		return nil, fmt.Errorf("failed to list assignment posts: %w", err)
	}
	return posts, nil
}

const sqlListShotOverduePosts = `
SELECT p.id, p.assignment_id, p.content_id, p.channel_id, p.message_id, p.views, p.shot_file_id, p.shot_at, p.no_shot, p.created_at
FROM posts p
WHERE p.shot_file_id IS NULL AND p.no_shot = false AND p.created_at < $1
ORDER BY p.id
`

// ListShotOverduePosts returns posts whose proof window has elapsed without a
// screenshot.
func (s *Store) ListShotOverduePosts(ctx context.Context, cutoff time.Time) ([]Post, error) {
	var posts []Post
	err := s.db.SelectContext(ctx, &posts, sqlListShotOverduePosts, cutoff)
	if err != nil {
		s.logger.Error(ctx, "failed to list shot overdue posts", err)
		return nil, fmt.Errorf("failed to list shot overdue posts: %w", err)
	}
	return posts, nil
}

// ContentViewStat is the per-content aggregate used by the view report.
type ContentViewStat struct {
	ContentID uuid.UUID `db:"content_id" json:"content_id"`
	ViewType  string    `db:"view_type" json:"view_type"`
	Posts     int64     `db:"posts" json:"posts"`
	Views     int64     `db:"views" json:"views"`
}

const sqlCampaignViewReport = `
SELECT c.id AS content_id, c.view_type, COUNT(p.id) AS posts, COALESCE(SUM(p.views), 0) AS views
FROM contents c
LEFT JOIN posts p ON p.content_id = c.id
WHERE c.campaign_id = $1
GROUP BY c.id, c.view_type
ORDER BY c.id
`

// CampaignViewReport aggregates collected views per content of a campaign.
func (s *Store) CampaignViewReport(ctx context.Context, campaignID uuid.UUID) ([]ContentViewStat, error) {
	var stats []ContentViewStat
	err := s.db.SelectContext(ctx, &stats, sqlCampaignViewReport, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to build campaign view report", err)
		return nil, fmt.Errorf("failed to build campaign view report: %w", err)
	}
	return stats, nil
}
