package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/push"
	"adtel/internal/session"
	"adtel/internal/store"
)

var shebaPattern = regexp.MustCompile(`^IR[0-9]{24}$`)

func (d *Dispatcher) handleStart(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err := d.telegram.SendText(ctx, u.ChatID, textWelcome, telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}

func (d *Dispatcher) handleStop(ctx context.Context, _ store.BotUser, _ session.Session, u telegram.Update) error {
	if err := d.sessions.Clear(ctx, u.FromID); err != nil {
		return err
	}
	_, err := d.telegram.SendText(ctx, u.ChatID, textStopped, telegram.SendOptions{})
	return err
}

// --- channel registration ---

func (d *Dispatcher) handleAddChannel(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	sess.Reset()
	sess.State = session.StateAddChannel
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err := d.telegram.SendText(ctx, u.ChatID, textAskChannelTag, telegram.SendOptions{})
	return err
}

// normalizeTag reduces the forms users paste (t.me links, @tags) to the bare
// channel username.
func normalizeTag(text string) string {
	tag := strings.TrimSpace(text)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/", "@"} {
		if rest, ok := strings.CutPrefix(tag, prefix); ok {
			tag = rest
			break
		}
	}
	return tag
}

func (d *Dispatcher) handleChannelTag(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	tag := normalizeTag(u.Text)
	chat, err := d.telegram.ChatInfo(ctx, tag)
	if err != nil {
		_, err := d.telegram.SendText(ctx, u.ChatID, textChannelLookup, telegram.SendOptions{})
		return err
	}

	existing, err := d.store.GetChannelByTelegramID(ctx, chat.ID)
	switch {
	case err == nil:
		if err := d.store.AddChannelAdmin(ctx, existing.ID, user.ID); err != nil {
			return err
		}
		d.partner.TriggerPublisherUpdate(ctx)
		sess.Reset()
		if err := d.sessions.Save(ctx, sess); err != nil {
			return err
		}
		_, err := d.telegram.SendText(ctx, u.ChatID, textChannelExists, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	case errors.Is(err, store.ErrNotFound):
		sess.PendingChannelTag = chat.Username
		if sess.PendingChannelTag == "" {
			sess.PendingChannelTag = tag
		}
		sess.State = session.StateGetSheba
		if err := d.sessions.Save(ctx, sess); err != nil {
			return err
		}
		_, err := d.telegram.SendText(ctx, u.ChatID, textAskSheba, telegram.SendOptions{})
		return err
	default:
		return err
	}
}

func (d *Dispatcher) handleSheba(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	sheba := strings.ToUpper(strings.TrimSpace(u.Text))
	if !shebaPattern.MatchString(sheba) {
		_, err := d.telegram.SendText(ctx, u.ChatID, textBadSheba, telegram.SendOptions{})
		return err
	}

	chat, err := d.telegram.ChatInfo(ctx, sess.PendingChannelTag)
	if err != nil {
		sess.Reset()
		if err := d.sessions.Save(ctx, sess); err != nil {
			return err
		}
		_, err := d.telegram.SendText(ctx, u.ChatID, textChannelLookup, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	}

	account, err := d.store.CreateBankAccount(ctx, user.ID, sheba, user.DisplayName())
	if err != nil {
		return err
	}
	var username *string
	if chat.Username != "" {
		username = &chat.Username
	}
	_, err = d.store.CreateChannel(ctx, store.CreateChannelParams{
		Title:           chat.Title,
		Username:        username,
		TelegramID:      chat.ID,
		MemberCount:     chat.MemberCount,
		ViewEfficiency:  estimateViewEfficiency(chat.MemberCount),
		PayoutAccountID: account.ID,
		AdminUserID:     user.ID,
	})
	if err != nil {
		return err
	}
	d.partner.TriggerPublisherUpdate(ctx)

	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textChannelAdded, telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}

// estimateViewEfficiency seeds the expected views per post of a fresh channel
// from its member count. The collector refines it from real counters later.
func estimateViewEfficiency(memberCount int64) int64 {
	return memberCount / 10
}

func (d *Dispatcher) handleRemoveChannel(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	channels, err := d.store.ListUserChannels(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		_, err := d.telegram.SendText(ctx, u.ChatID, textNoChannels, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	}
	keyboard := make(telegram.Keyboard, 0, len(channels))
	for _, ch := range channels {
		keyboard = append(keyboard, []telegram.Button{{
			Text:         ch.Title,
			CallbackData: prefixRemove + encodeID(ch.ID),
		}})
	}
	sess.Reset()
	sess.State = session.StateRemoveChannel
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textPickRemove, telegram.SendOptions{Keyboard: keyboard})
	return err
}

func (d *Dispatcher) handleRemoveChannelPick(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	channelID, err := decodeAfter(u.CallbackData, prefixRemove)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	if err := d.store.RemoveChannelAdmin(ctx, channelID, user.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	d.partner.TriggerPublisherUpdate(ctx)

	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if err := d.telegram.DeleteMessage(ctx, u.ChatID, u.MessageID); err != nil {
		d.logger.InfoWithError(ctx, "failed to delete channel picker", err)
	}
	if err := d.telegram.AnswerCallback(ctx, u.CallbackID, textChannelRemoved); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textChannelRemoved, telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}

// --- payout account exchange ---

func (d *Dispatcher) handleChangeSheba(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	channels, err := d.store.ListUserChannels(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		_, err := d.telegram.SendText(ctx, u.ChatID, textNoChannels, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	}
	keyboard := make(telegram.Keyboard, 0, len(channels))
	for _, ch := range channels {
		keyboard = append(keyboard, []telegram.Button{{
			Text:         ch.Title,
			CallbackData: prefixSheba + encodeID(ch.ID),
		}})
	}
	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textPickSheba, telegram.SendOptions{Keyboard: keyboard})
	return err
}

func (d *Dispatcher) handleShebaChannelPick(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	channelID, err := decodeAfter(u.CallbackData, prefixSheba)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	sess.State = session.StateExchangeSheba
	sess.PendingChannelID = &channelID
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if err := d.telegram.AnswerCallback(ctx, u.CallbackID, ""); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textAskNewSheba, telegram.SendOptions{})
	return err
}

// handleNewSheba replaces the payout account behind the picked channel.
// Every channel paying out to the old account follows; assignments keep the
// sheba they were claimed with.
func (d *Dispatcher) handleNewSheba(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	sheba := strings.ToUpper(strings.TrimSpace(u.Text))
	if !shebaPattern.MatchString(sheba) {
		_, err := d.telegram.SendText(ctx, u.ChatID, textBadSheba, telegram.SendOptions{})
		return err
	}
	if sess.PendingChannelID == nil {
		return d.handleFallback(ctx, user, sess, u)
	}
	channel, err := d.store.GetChannelByID(ctx, *sess.PendingChannelID)
	if err != nil {
		return err
	}

	account, err := d.store.CreateBankAccount(ctx, user.ID, sheba, user.DisplayName())
	if err != nil {
		return err
	}
	if _, err := d.store.ExchangeBankAccount(ctx, channel.PayoutAccountID, account.ID); err != nil {
		return err
	}

	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textShebaChanged, telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}

func (d *Dispatcher) handleMyChannels(ctx context.Context, user store.BotUser, _ session.Session, u telegram.Update) error {
	channels, err := d.store.ListUserChannels(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		_, err := d.telegram.SendText(ctx, u.ChatID, textNoChannels, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	}
	var b strings.Builder
	b.WriteString("Your channels:\n")
	for _, ch := range channels {
		tag := ""
		if ch.Username != nil && *ch.Username != "" {
			tag = " (@" + *ch.Username + ")"
		}
		fmt.Fprintf(&b, "• %s%s — %d members, ~%d views/post\n", ch.Title, tag, ch.MemberCount, ch.ViewEfficiency)
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, b.String(), telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}

// --- sticker registration ---

func (d *Dispatcher) handleSetSticker(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	sess.Reset()
	sess.State = session.StateGetSticker
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err := d.telegram.SendText(ctx, u.ChatID, textAskSticker, telegram.SendOptions{})
	return err
}

func (d *Dispatcher) handleStickerMessage(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	if err := d.store.SetUserSticker(ctx, user.ID, u.StickerFileID); err != nil {
		return err
	}
	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err := d.telegram.SendText(ctx, u.ChatID, textStickerSaved, telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}

// --- campaign browse and reporting ---

func (d *Dispatcher) handleActiveCampaigns(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	campaigns, err := d.store.ListOpenCampaigns(ctx)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		_, err := d.telegram.SendText(ctx, u.ChatID, textNoCampaigns, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	}
	keyboard := make(telegram.Keyboard, 0, len(campaigns))
	for _, c := range campaigns {
		keyboard = append(keyboard, []telegram.Button{{
			Text:         c.Title,
			CallbackData: prefixCampaign + encodeID(c.ID),
		}})
	}
	sess.Reset()
	sess.State = session.StateActiveAd
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textPickCampaign, telegram.SendOptions{Keyboard: keyboard})
	return err
}

func (d *Dispatcher) handleCampaignDetail(ctx context.Context, _ store.BotUser, _ session.Session, u telegram.Update) error {
	campaignID, err := decodeAfter(u.CallbackData, prefixCampaign)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	campaign, err := d.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return d.telegram.AnswerCallback(ctx, u.CallbackID, textNoCampaigns)
		}
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\nView budget: %d", campaign.Title, campaign.MaxView)
	if campaign.EndTime != nil {
		fmt.Fprintf(&b, "\nRuns until: %s", campaign.EndTime.Format("2006-01-02"))
	}
	if err := d.telegram.AnswerCallback(ctx, u.CallbackID, ""); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, b.String(), telegram.SendOptions{ParseMode: "Markdown"})
	return err
}

func (d *Dispatcher) handleFinancialReport(ctx context.Context, user store.BotUser, _ session.Session, u telegram.Update) error {
	assignments, err := d.store.ListUserAssignments(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		_, err := d.telegram.SendText(ctx, u.ChatID, textNoAssignments, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	}

	var b strings.Builder
	b.WriteString("*Your claims*\n")
	var totalPaid, totalPending int64
	for _, a := range assignments {
		title := "campaign"
		if campaign, err := d.store.GetCampaignByID(ctx, a.CampaignID); err == nil {
			title = campaign.Title
		}
		switch {
		case a.PaidAt != nil && a.ReceiptPrice != nil:
			fmt.Fprintf(&b, "%s — %d paid on %s\n", title, *a.ReceiptPrice, a.PaidAt.Format("2006-01-02"))
			totalPaid += *a.ReceiptPrice
		case a.ReceiptPrice != nil:
			fmt.Fprintf(&b, "%s — %d pending payout\n", title, *a.ReceiptPrice)
			totalPending += *a.ReceiptPrice
		default:
			fmt.Fprintf(&b, "%s — still counting views\n", title)
		}
	}
	fmt.Fprintf(&b, "\nPaid total: %d\nPending total: %d", totalPaid, totalPending)
	_, err = d.telegram.SendText(ctx, u.ChatID, b.String(), telegram.SendOptions{ParseMode: "Markdown", ReplyButtons: mainMenu()})
	return err
}

// --- screenshot submission ---

func (d *Dispatcher) handleSendScreenshot(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error {
	assignments, err := d.store.ListUserAssignments(ctx, user.ID)
	if err != nil {
		return err
	}
	keyboard := telegram.Keyboard{}
	for _, a := range assignments {
		posts, err := d.store.ListPostsByAssignment(ctx, a.ID)
		if err != nil {
			return err
		}
		if len(postsMissingShot(posts)) == 0 {
			continue
		}
		title := "campaign"
		if campaign, err := d.store.GetCampaignByID(ctx, a.CampaignID); err == nil {
			title = campaign.Title
		}
		keyboard = append(keyboard, []telegram.Button{{
			Text:         title,
			CallbackData: prefixShotClaim + encodeID(a.ID),
		}})
	}
	if len(keyboard) == 0 {
		_, err := d.telegram.SendText(ctx, u.ChatID, textNoAssignments, telegram.SendOptions{ReplyButtons: mainMenu()})
		return err
	}
	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textPickShotAd, telegram.SendOptions{Keyboard: keyboard})
	return err
}

func postsMissingShot(posts []store.Post) []store.Post {
	var out []store.Post
	for _, p := range posts {
		if p.ShotFileID == nil && !p.NoShot {
			out = append(out, p)
		}
	}
	return out
}

func (d *Dispatcher) handleShotClaimPick(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	assignmentID, err := decodeAfter(u.CallbackData, prefixShotClaim)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	posts, err := d.store.ListPostsByAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	missing := postsMissingShot(posts)
	if len(missing) == 0 {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, textNoShotPosts)
	}

	keyboard := make(telegram.Keyboard, 0, len(missing))
	for _, p := range missing {
		label := "post"
		if ch, err := d.store.GetChannelByID(ctx, p.ChannelID); err == nil {
			label = ch.Title
		}
		keyboard = append(keyboard, []telegram.Button{{
			Text:         label,
			CallbackData: prefixShotPost + encodeID(p.ID),
		}})
	}
	sess.AssignmentID = &assignmentID
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if err := d.telegram.AnswerCallback(ctx, u.CallbackID, ""); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textPickShotPost, telegram.SendOptions{Keyboard: keyboard})
	return err
}

func (d *Dispatcher) handleShotPostPick(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	postID, err := decodeAfter(u.CallbackData, prefixShotPost)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	sess.State = session.StateGetShot
	sess.ShotPostID = &postID
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	if err := d.telegram.AnswerCallback(ctx, u.CallbackID, ""); err != nil {
		return err
	}
	_, err = d.telegram.SendText(ctx, u.ChatID, textAskShot, telegram.SendOptions{})
	return err
}

func (d *Dispatcher) handleShotPhoto(ctx context.Context, _ store.BotUser, sess session.Session, u telegram.Update) error {
	if sess.ShotPostID == nil {
		return d.handleFallback(ctx, store.BotUser{}, sess, u)
	}
	if d.shots != nil {
		if err := d.shots.EnqueueShot(ctx, *sess.ShotPostID, u.PhotoFileID); err != nil {
			return err
		}
	} else if err := d.ReceiveShot(ctx, u.PhotoFileID, *sess.ShotPostID); err != nil {
		return err
	}
	sess.Reset()
	if err := d.sessions.Save(ctx, sess); err != nil {
		return err
	}
	_, err := d.telegram.SendText(ctx, u.ChatID, textShotSaved, telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}

// ReceiveShot stamps a screenshot onto a post and, when the post has no view
// count yet, samples one immediately so the proof and the counter line up.
func (d *Dispatcher) ReceiveShot(ctx context.Context, fileID string, postID uuid.UUID) error {
	post, err := d.store.GetPostByID(ctx, postID)
	if err != nil {
		return err
	}
	// Resolving the URL verifies the file id actually points at something
	// downloadable before it is persisted.
	if _, err := d.telegram.FileURL(ctx, fileID); err != nil {
		return fmt.Errorf("screenshot file not reachable: %w", err)
	}
	if err := d.store.SetPostShot(ctx, postID, fileID); err != nil {
		return err
	}
	if post.Views != nil {
		return nil
	}

	channel, err := d.store.GetChannelByID(ctx, post.ChannelID)
	if err != nil || channel.Username == nil || *channel.Username == "" {
		return nil
	}
	counts, err := d.views.MessageViews(ctx, *channel.Username, []int{post.MessageID})
	if err != nil {
		d.logger.InfoWithError(ctx, "failed to sample views for shot post", err)
		return nil
	}
	views, ok := counts[post.MessageID]
	if !ok {
		return nil
	}
	if err := d.store.UpdatePostViews(ctx, postID, views); err != nil {
		return err
	}
	return d.store.AppendPostViewLog(ctx, postID, views)
}

// --- push offer callbacks ---

func (d *Dispatcher) handleOfferToggle(ctx context.Context, _ store.BotUser, _ session.Session, u telegram.Update) error {
	offerID, channelID, _, err := push.DecodeToggle(u.CallbackData)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	_, keyboard, err := d.offers.ToggleSelection(ctx, u.FromID, offerID, channelID)
	switch {
	case errors.Is(err, push.ErrOfferClosed):
		return d.telegram.AnswerCallback(ctx, u.CallbackID, textSelectionClosed)
	case errors.Is(err, push.ErrTariffMismatch):
		return d.telegram.AnswerCallback(ctx, u.CallbackID, textTariffMismatch)
	case errors.Is(err, push.ErrPayoutAccountMismatch):
		return d.telegram.AnswerCallback(ctx, u.CallbackID, textPayoutMismatch)
	case err != nil:
		return err
	}
	if err := d.telegram.EditReplyMarkup(ctx, u.ChatID, u.MessageID, keyboard); err != nil {
		d.logger.InfoWithError(ctx, "failed to refresh offer keyboard", err)
	}
	return d.telegram.AnswerCallback(ctx, u.CallbackID, textSelectionSaved)
}

func (d *Dispatcher) handleOfferConfirm(ctx context.Context, user store.BotUser, _ session.Session, u telegram.Update) error {
	offerID, err := push.DecodeConfirm(u.CallbackData)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	err = d.offers.Confirm(ctx, offerID, user)
	var conflict *store.ClaimConflictError
	switch {
	case errors.Is(err, push.ErrEmptySelection):
		return d.telegram.AnswerCallback(ctx, u.CallbackID, textSelectionEmpty)
	case errors.As(err, &conflict):
		text := fmt.Sprintf("Too late: %s already went to %s.", conflict.ChannelTitle, conflict.WinnerName)
		return d.telegram.AnswerCallback(ctx, u.CallbackID, text)
	case errors.Is(err, push.ErrOfferClosed):
		return d.telegram.AnswerCallback(ctx, u.CallbackID, textSelectionClosed)
	case err != nil:
		return err
	}
	return d.telegram.AnswerCallback(ctx, u.CallbackID, textClaimDone)
}

func (d *Dispatcher) handleOfferCancel(ctx context.Context, user store.BotUser, _ session.Session, u telegram.Update) error {
	offerID, err := push.DecodeCancel(u.CallbackData)
	if err != nil {
		return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
	}
	if err := d.offers.Cancel(ctx, offerID, user); err != nil && !errors.Is(err, push.ErrOfferClosed) {
		return err
	}
	return d.telegram.AnswerCallback(ctx, u.CallbackID, textClaimDismissed)
}
