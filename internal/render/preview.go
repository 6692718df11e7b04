package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/store"
)

// RenderPreview posts the campaign's contents to a single chat without
// minting links or recording posts. Backs the test endpoint.
func (r *Renderer) RenderPreview(ctx context.Context, campaignID uuid.UUID, chatID int64) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
	)

	campaign, err := r.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	contents, err := r.store.ListCampaignContents(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to list contents: %w", err)
	}

	var errs []error
	for _, content := range contents {
		if err := r.previewContent(ctx, campaign, content, chatID); err != nil {
			r.logger.Error(ctx, "failed to preview content "+content.ID.String(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Renderer) previewContent(ctx context.Context, campaign store.Campaign, content store.Content, chatID int64) error {
	if content.PostLink != nil && *content.PostLink != "" {
		text := fmt.Sprintf("Campaign %q reuses an existing post:\n%s", campaign.Title, *content.PostLink)
		_, err := r.telegram.SendText(ctx, chatID, text, telegram.SendOptions{DisableWebPagePreview: true})
		return err
	}

	buttons, err := r.store.ListContentButtons(ctx, content.ID)
	if err != nil {
		return err
	}
	opts := telegram.SendOptions{Keyboard: buildKeyboard(buttons, nil), ParseMode: "Markdown"}

	files, err := r.store.ListContentFiles(ctx, content.ID)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		file := files[0]
		ref := telegram.FileRef{URL: file.FileRef}
		if file.TelegramFileID != nil {
			ref.TelegramFileID = *file.TelegramFileID
		}
		_, _, err := r.telegram.SendFile(ctx, chatID, file.FileType, ref, content.Text, opts)
		return err
	}

	if content.IsSticker {
		// Sticker contents are admin-specific; the preview just notes them.
		text := fmt.Sprintf("Content %d posts the claiming admin's registered sticker.", content.Ord)
		_, err := r.telegram.SendText(ctx, chatID, text, telegram.SendOptions{})
		return err
	}

	_, err = r.telegram.SendText(ctx, chatID, content.Text, opts)
	return err
}
