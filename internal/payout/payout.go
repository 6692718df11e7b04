package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/store"
)

// Store is the persistence surface the payout calculator needs.
type Store interface {
	ListReceiptCandidates(ctx context.Context) ([]store.Assignment, error)
	GetAssignmentByID(ctx context.Context, id uuid.UUID) (store.Assignment, error)
	ListPostsByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]store.Post, error)
	GetContentByID(ctx context.Context, id uuid.UUID) (store.Content, error)
	GetCampaignByID(ctx context.Context, id uuid.UUID) (store.Campaign, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (store.BotUser, error)
	SetAssignmentReceipt(ctx context.Context, id uuid.UUID, price int64, code string) error
	MarkAssignmentPaid(ctx context.Context, id uuid.UUID) error
	ListInvalidAssignments(ctx context.Context, cutoff time.Time) ([]store.Assignment, error)
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
}

// Calculator prices finished assignments and handles payout notices.
type Calculator struct {
	store    Store
	telegram telegram.Client
	logger   *observability.Logger
}

// New creates a payout calculator.
func New(st Store, tg telegram.Client, logger *observability.Logger) *Calculator {
	return &Calculator{store: st, telegram: tg, logger: logger}
}

// receiptCode mints the short reference the accountant quotes on the bank
// transfer.
func receiptCode() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

// receiptPrice computes the payout in whole currency units:
// floor(tariff * views / 1000) rounded down to the nearest ten.
func receiptPrice(tariff, views int64) int64 {
	price := decimal.NewFromInt(tariff).
		Mul(decimal.NewFromInt(views)).
		Div(decimal.NewFromInt(1000)).
		IntPart()
	return price / 10 * 10
}

// CalculateReceipts prices every assignment whose proof is complete: all
// partial posts carry a frozen view count and a screenshot. The price uses
// the highest partial view count across the assignment's posts. Assignments
// still waiting on views or proof are left for the next cycle.
func (c *Calculator) CalculateReceipts(ctx context.Context) error {
	candidates, err := c.store.ListReceiptCandidates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list receipt candidates: %w", err)
	}

	contents := map[uuid.UUID]store.Content{}
	for _, assignment := range candidates {
		actx := observability.WithFields(ctx,
			observability.Field{Key: "assignment_id", Value: assignment.ID.String()},
		)
		views, ready, err := c.settledViews(ctx, assignment, contents)
		if err != nil {
			c.logger.Error(actx, "failed to inspect assignment posts", err)
			continue
		}
		if !ready {
			continue
		}

		price := receiptPrice(assignment.Tariff, views)
		if err := c.store.SetAssignmentReceipt(ctx, assignment.ID, price, receiptCode()); err != nil {
			c.logger.Error(actx, "failed to set receipt price", err)
		}
	}
	return nil
}

// settledViews returns the highest settled partial view count of the
// assignment and whether every partial post has settled. A post settles by
// freezing its views and either delivering a screenshot or being flagged
// no-shot; no-shot posts are excluded from the price.
func (c *Calculator) settledViews(ctx context.Context, assignment store.Assignment, contents map[uuid.UUID]store.Content) (int64, bool, error) {
	posts, err := c.store.ListPostsByAssignment(ctx, assignment.ID)
	if err != nil {
		return 0, false, err
	}
	if len(posts) == 0 {
		return 0, false, nil
	}

	var best int64
	seen := false
	for _, post := range posts {
		content, ok := contents[post.ContentID]
		if !ok {
			content, err = c.store.GetContentByID(ctx, post.ContentID)
			if err != nil {
				return 0, false, err
			}
			contents[post.ContentID] = content
		}
		if content.ViewType != store.ContentViewTypePartial {
			continue
		}
		if post.NoShot {
			continue
		}
		if post.Views == nil || post.ShotFileID == nil {
			return 0, false, nil
		}
		seen = true
		if *post.Views > best {
			best = *post.Views
		}
	}
	return best, seen, nil
}

// SendPaidNotice stamps an assignment paid and tells the admin. The stamp is
// write-once, so a re-run of the job never double-notifies.
func (c *Calculator) SendPaidNotice(ctx context.Context, assignmentID uuid.UUID) error {
	assignment, err := c.store.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment.ReceiptPrice == nil {
		return fmt.Errorf("assignment %s has no receipt price", assignmentID)
	}

	if err := c.store.MarkAssignmentPaid(ctx, assignmentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to mark assignment paid: %w", err)
	}

	campaign, err := c.store.GetCampaignByID(ctx, assignment.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	admin, err := c.store.GetUserByID(ctx, assignment.UserID)
	if err != nil {
		return fmt.Errorf("failed to load admin: %w", err)
	}

	text := fmt.Sprintf("*Payout sent*\n\nCampaign: %s\nAmount: %d\nSheba: %s (%s)",
		campaign.Title, *assignment.ReceiptPrice, assignment.ShebaNumber, assignment.ShebaOwner)
	if assignment.ReceiptCode != nil {
		text += fmt.Sprintf("\nReceipt: %s", *assignment.ReceiptCode)
	}
	if _, err := c.telegram.SendText(ctx, admin.TelegramID, text, telegram.SendOptions{ParseMode: "Markdown"}); err != nil {
		c.logger.Error(ctx, "failed to send paid notice", err)
	}
	return nil
}

// PruneInvalid deletes assignments that never materialized: no channels or
// no posts after the grace window. A failed deletion makes the whole run
// fail so the job layer retries it with its bounded policy.
func (c *Calculator) PruneInvalid(ctx context.Context, grace time.Duration) error {
	invalid, err := c.store.ListInvalidAssignments(ctx, time.Now().Add(-grace))
	if err != nil {
		return fmt.Errorf("failed to list invalid assignments: %w", err)
	}

	var errs []error
	for _, assignment := range invalid {
		if err := c.store.DeleteAssignment(ctx, assignment.ID); err != nil {
			c.logger.Error(ctx, "failed to prune assignment "+assignment.ID.String(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
