package render

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"adtel/internal/clients/shortlink"
	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/store"
)

// Store is the persistence surface the renderer needs.
type Store interface {
	GetCampaignByID(ctx context.Context, id uuid.UUID) (store.Campaign, error)
	ListCampaignContents(ctx context.Context, campaignID uuid.UUID) ([]store.Content, error)
	GetContentByID(ctx context.Context, id uuid.UUID) (store.Content, error)
	ListContentFiles(ctx context.Context, contentID uuid.UUID) ([]store.ContentFile, error)
	ListContentLinks(ctx context.Context, contentID uuid.UUID) ([]store.ContentLink, error)
	ListContentButtons(ctx context.Context, contentID uuid.UUID) ([]store.ContentButton, error)
	CountPostsForContent(ctx context.Context, contentID uuid.UUID) (int, error)
	SetContentMessageID(ctx context.Context, id uuid.UUID, messageID int) error
	UpdateContentFileTelegramID(ctx context.Context, id uuid.UUID, fileID string) error
	CreatePost(ctx context.Context, params store.CreatePostParams) (store.Post, error)
	CreateShortLink(ctx context.Context, params store.CreateShortLinkParams) (store.ShortLink, error)
	LinkPostShortLinks(ctx context.Context, postID uuid.UUID, shortLinkIDs []uuid.UUID) error
	GetChannelByID(ctx context.Context, id uuid.UUID) (store.Channel, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (store.BotUser, error)
}

// Shortener mints tracked short links.
type Shortener interface {
	Shorten(ctx context.Context, params shortlink.ShortenRequest) (shortlink.ShortenResponse, error)
}

// Renderer posts a claimed campaign's contents to the mother channel and
// hands them to the winning admin.
type Renderer struct {
	store     Store
	telegram  telegram.Client
	shortener Shortener
	logger    *observability.Logger
}

// New creates a renderer.
func New(st Store, tg telegram.Client, shortener Shortener, logger *observability.Logger) *Renderer {
	return &Renderer{store: st, telegram: tg, shortener: shortener, logger: logger}
}

// mintedLinks is the per-content short-link resolution: body replacements,
// button bindings and the rows to attribute to created posts.
type mintedLinks struct {
	bodyRepl    map[string]string    // original url -> short url
	buttonURLs  map[uuid.UUID]string // button id -> short url
	shortLinkID []uuid.UUID
}

// RenderAssignment walks the campaign's contents in order and posts each one
// for the winning assignment. Per-content failures are collected; a partial
// render never undoes the posted contents before it.
func (r *Renderer) RenderAssignment(ctx context.Context, assignment store.Assignment, channels []store.Channel) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "assignment_id", Value: assignment.ID.String()},
	)

	campaign, err := r.store.GetCampaignByID(ctx, assignment.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	admin, err := r.store.GetUserByID(ctx, assignment.UserID)
	if err != nil {
		return fmt.Errorf("failed to load winning admin: %w", err)
	}
	contents, err := r.store.ListCampaignContents(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to list contents: %w", err)
	}

	var errs []error
	var auditChannel *store.Channel
	for _, content := range contents {
		mother, err := r.renderContent(ctx, campaign, content, assignment, admin, channels)
		if err != nil {
			r.logger.Error(ctx, "failed to render content "+content.ID.String(), err)
			errs = append(errs, err)
			continue
		}
		if auditChannel == nil && mother != nil {
			auditChannel = mother
		}
	}

	if auditChannel != nil {
		r.sendAuditMessage(ctx, campaign, *auditChannel, channels)
	}
	r.sendConditions(ctx, campaign, admin, channels)

	return errors.Join(errs...)
}

// renderContent posts one content for the assignment and returns the mother
// channel it used, nil for contents that post nothing.
func (r *Renderer) renderContent(ctx context.Context, campaign store.Campaign, content store.Content, assignment store.Assignment, admin store.BotUser, channels []store.Channel) (*store.Channel, error) {
	// A bare post link points at an existing message; the admin just gets
	// told where it lives.
	if content.PostLink != nil && *content.PostLink != "" {
		text := fmt.Sprintf("Campaign %q reuses an existing post:\n%s\n\nForward it to your channels as-is.", campaign.Title, *content.PostLink)
		if _, err := r.telegram.SendText(ctx, admin.TelegramID, text, telegram.SendOptions{DisableWebPagePreview: true}); err != nil {
			return nil, fmt.Errorf("failed to send post link notice: %w", err)
		}
		return nil, nil
	}

	if content.MotherChannelID == nil {
		return nil, fmt.Errorf("content %s has no mother channel", content.ID)
	}
	mother, err := r.store.GetChannelByID(ctx, *content.MotherChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mother channel: %w", err)
	}

	links, err := r.store.ListContentLinks(ctx, content.ID)
	if err != nil {
		return nil, err
	}
	buttons, err := r.store.ListContentButtons(ctx, content.ID)
	if err != nil {
		return nil, err
	}

	switch content.ViewType {
	case store.ContentViewTypeTotal:
		return &mother, r.renderTotal(ctx, campaign, content, assignment, admin, mother, links, buttons, channels)
	default:
		return &mother, r.renderPartial(ctx, campaign, content, assignment, admin, mother, links, buttons, channels)
	}
}

// renderTotal renders a total-view content: one shared message in the mother
// channel, forwarded to every winner. The message is created at most once;
// when tracked links exist it is re-minted for the new assignment and edited
// in place before forwarding.
func (r *Renderer) renderTotal(ctx context.Context, campaign store.Campaign, content store.Content, assignment store.Assignment, admin store.BotUser, mother store.Channel, links []store.ContentLink, buttons []store.ContentButton, channels []store.Channel) error {
	messageID := 0
	if content.MessageID != nil {
		messageID = *content.MessageID
	}

	var minted mintedLinks
	if len(links) > 0 {
		minted = r.mintLinks(ctx, campaign, content, assignment, links)
	}

	if messageID == 0 {
		msg, err := r.createMessage(ctx, campaign, content, admin, mother, minted, buttons)
		if err != nil {
			return err
		}
		messageID = msg.MessageID
		if err := r.store.SetContentMessageID(ctx, content.ID, messageID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Another render won the write-once race; reuse theirs.
				fresh, ferr := r.contentMessageID(ctx, content.ID)
				if ferr != nil {
					return ferr
				}
				messageID = fresh
			} else {
				return err
			}
		}
	} else if len(links) > 0 {
		// Refresh tracking for the new assignment before forwarding.
		body := applyBodyLinks(content.Text, minted.bodyRepl)
		keyboard := buildKeyboard(buttons, minted.buttonURLs)
		if err := r.telegram.EditCaption(ctx, mother.TelegramID, messageID, body, keyboard); err != nil {
			r.logger.Error(ctx, "failed to refresh total content caption", err)
		}
	}

	if _, err := r.telegram.ForwardMessage(ctx, admin.TelegramID, mother.TelegramID, messageID); err != nil {
		return fmt.Errorf("failed to forward total content: %w", err)
	}

	return r.createPosts(ctx, assignment, content, channels, messageID, minted.shortLinkID)
}

// renderPartial renders a partial-view content: a fresh message per winning
// channel so views are attributable per post.
func (r *Renderer) renderPartial(ctx context.Context, campaign store.Campaign, content store.Content, assignment store.Assignment, admin store.BotUser, mother store.Channel, links []store.ContentLink, buttons []store.ContentButton, channels []store.Channel) error {
	var minted mintedLinks
	if len(links) > 0 {
		minted = r.mintLinks(ctx, campaign, content, assignment, links)
	}

	for _, channel := range channels {
		msg, err := r.createMessage(ctx, campaign, content, admin, mother, minted, buttons)
		if err != nil {
			return err
		}
		if _, err := r.telegram.ForwardMessage(ctx, admin.TelegramID, mother.TelegramID, msg.MessageID); err != nil {
			r.logger.Error(ctx, "failed to forward partial content", err)
		}
		if err := r.createPosts(ctx, assignment, content, []store.Channel{channel}, msg.MessageID, minted.shortLinkID); err != nil {
			return err
		}
	}
	return nil
}

// createMessage posts the content body into the mother channel, rotating
// through the content's files so repeated posts do not all carry the same
// attachment.
func (r *Renderer) createMessage(ctx context.Context, campaign store.Campaign, content store.Content, admin store.BotUser, mother store.Channel, minted mintedLinks, buttons []store.ContentButton) (telegram.Message, error) {
	body := applyBodyLinks(content.Text, minted.bodyRepl)
	keyboard := buildKeyboard(buttons, minted.buttonURLs)
	opts := telegram.SendOptions{Keyboard: keyboard, ParseMode: "Markdown"}

	files, err := r.store.ListContentFiles(ctx, content.ID)
	if err != nil {
		return telegram.Message{}, err
	}

	if len(files) > 0 {
		count, err := r.store.CountPostsForContent(ctx, content.ID)
		if err != nil {
			return telegram.Message{}, err
		}
		file := files[count%len(files)]
		ref := telegram.FileRef{URL: file.FileRef}
		if file.TelegramFileID != nil {
			ref.TelegramFileID = *file.TelegramFileID
		}
		msg, sent, err := r.telegram.SendFile(ctx, mother.TelegramID, file.FileType, ref, body, opts)
		if err != nil {
			return telegram.Message{}, fmt.Errorf("failed to post content file: %w", err)
		}
		if file.TelegramFileID == nil && sent.FileID != "" {
			if err := r.store.UpdateContentFileTelegramID(ctx, file.ID, sent.FileID); err != nil {
				r.logger.Error(ctx, "failed to cache telegram file id", err)
			}
		}
		return msg, nil
	}

	if content.IsSticker {
		if admin.StickerFileID == nil {
			return telegram.Message{}, fmt.Errorf("admin %s has no registered sticker", admin.ID)
		}
		msg, _, err := r.telegram.SendFile(ctx, mother.TelegramID, store.FileTypeSticker,
			telegram.FileRef{TelegramFileID: *admin.StickerFileID}, "", telegram.SendOptions{})
		if err != nil {
			return telegram.Message{}, fmt.Errorf("failed to post sticker content: %w", err)
		}
		return msg, nil
	}

	msg, err := r.telegram.SendText(ctx, mother.TelegramID, body, opts)
	if err != nil {
		return telegram.Message{}, fmt.Errorf("failed to post text content: %w", err)
	}
	return msg, nil
}

// mintLinks mints a short link per tracked link. Failures degrade per link:
// the original long URL stays in place and no short-link row is written.
func (r *Renderer) mintLinks(ctx context.Context, campaign store.Campaign, content store.Content, assignment store.Assignment, links []store.ContentLink) mintedLinks {
	minted := mintedLinks{
		bodyRepl:   map[string]string{},
		buttonURLs: map[uuid.UUID]string{},
	}
	for _, link := range links {
		req := shortlink.ShortenRequest{
			Title:       campaign.Title,
			DestURL:     link.URL,
			UTMSource:   deref(link.UTMSource),
			UTMMedium:   deref(link.UTMMedium),
			UTMCampaign: campaign.Title,
			UTMTerm:     deref(link.UTMTerm),
			UTMContent:  deref(link.UTMContent),
		}
		if req.UTMContent == "" {
			req.UTMContent = assignment.ID.String()
		}

		resp, err := r.shortener.Shorten(ctx, req)
		if err != nil {
			r.logger.Error(ctx, "failed to mint short link, keeping original url", err)
			continue
		}
		row, err := r.store.CreateShortLink(ctx, store.CreateShortLinkParams{
			LinkID:       link.ID,
			AssignmentID: &assignment.ID,
			ExternalID:   resp.ID,
			ShortURL:     resp.ShortURL,
		})
		if err != nil {
			r.logger.Error(ctx, "failed to persist short link", err)
			continue
		}
		minted.shortLinkID = append(minted.shortLinkID, row.ID)

		if link.ButtonID != nil {
			minted.buttonURLs[*link.ButtonID] = resp.ShortURL
		} else {
			minted.bodyRepl[link.URL] = resp.ShortURL
		}
	}
	return minted
}

func (r *Renderer) createPosts(ctx context.Context, assignment store.Assignment, content store.Content, channels []store.Channel, messageID int, shortLinkIDs []uuid.UUID) error {
	for _, channel := range channels {
		post, err := r.store.CreatePost(ctx, store.CreatePostParams{
			AssignmentID: assignment.ID,
			ContentID:    content.ID,
			ChannelID:    channel.ID,
			MessageID:    messageID,
		})
		if err != nil {
			return fmt.Errorf("failed to create post row: %w", err)
		}
		if len(shortLinkIDs) > 0 {
			if err := r.store.LinkPostShortLinks(ctx, post.ID, shortLinkIDs); err != nil {
				r.logger.Error(ctx, "failed to attribute short links to post", err)
			}
		}
	}
	return nil
}

func (r *Renderer) contentMessageID(ctx context.Context, contentID uuid.UUID) (int, error) {
	content, err := r.store.GetContentByID(ctx, contentID)
	if err != nil {
		return 0, fmt.Errorf("failed to reload content after message id race: %w", err)
	}
	if content.MessageID == nil {
		return 0, fmt.Errorf("total content %s lost message id race", contentID)
	}
	return *content.MessageID, nil
}

// sendAuditMessage posts a claim record into the mother channel.
func (r *Renderer) sendAuditMessage(ctx context.Context, campaign store.Campaign, mother store.Channel, channels []store.Channel) {
	tags := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.Username != nil && *ch.Username != "" {
			tags = append(tags, "@"+*ch.Username)
		} else {
			tags = append(tags, ch.Title)
		}
	}
	text := fmt.Sprintf("Campaign %q claimed by: %s", campaign.Title, strings.Join(tags, ", "))
	if _, err := r.telegram.SendText(ctx, mother.TelegramID, text, telegram.SendOptions{}); err != nil {
		r.logger.Error(ctx, "failed to send audit message", err)
	}
}

// sendConditions sends the combined confirmation and publication terms to
// the winning admin.
func (r *Renderer) sendConditions(ctx context.Context, campaign store.Campaign, admin store.BotUser, channels []store.Channel) {
	var b strings.Builder
	fmt.Fprintf(&b, "You claimed campaign %q.\n\n", campaign.Title)
	b.WriteString("Terms:\n")
	b.WriteString("- Publish the forwarded posts without edits.\n")
	b.WriteString("- Keep each post up until the campaign ends.\n")
	b.WriteString("- Send a screenshot of each published post through this bot.\n")
	if len(channels) > 1 {
		b.WriteString("- Publish every post to each of your claimed channels.\n")
	}
	if _, err := r.telegram.SendText(ctx, admin.TelegramID, b.String(), telegram.SendOptions{}); err != nil {
		r.logger.Error(ctx, "failed to send conditions message", err)
	}
}

func applyBodyLinks(body string, repl map[string]string) string {
	for long, short := range repl {
		body = strings.ReplaceAll(body, long, short)
	}
	return body
}

// buildKeyboard lays buttons out by their grid position: buttons sharing a
// row index share a keyboard row, rows ascend.
func buildKeyboard(buttons []store.ContentButton, minted map[uuid.UUID]string) telegram.Keyboard {
	if len(buttons) == 0 {
		return nil
	}
	var keyboard telegram.Keyboard
	var currentRow []telegram.Button
	lastRow := -1
	for _, btn := range buttons {
		url := ""
		if btn.URL != nil {
			url = *btn.URL
		}
		if short, ok := minted[btn.ID]; ok {
			url = short
		}
		if url == "" {
			continue
		}
		if btn.Row != lastRow && currentRow != nil {
			keyboard = append(keyboard, currentRow)
			currentRow = nil
		}
		lastRow = btn.Row
		currentRow = append(currentRow, telegram.Button{Text: btn.Text, URL: url})
	}
	if currentRow != nil {
		keyboard = append(keyboard, currentRow)
	}
	return keyboard
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
