package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/push"
	"adtel/internal/session"
	"adtel/internal/store"
)

type dispatchFixture struct {
	dispatcher *Dispatcher
	store      *fakeStore
	sessions   *memorySessions
	telegram   *fakeTelegram
	offers     *fakeOffers
	partner    *fakePartner
	views      *fakeViews
}

func newDispatchFixture() *dispatchFixture {
	f := &dispatchFixture{
		store:    newFakeStore(),
		sessions: newMemorySessions(),
		telegram: newFakeTelegram(),
		offers:   &fakeOffers{},
		partner:  &fakePartner{},
		views:    &fakeViews{counts: map[string]map[int]int64{}},
	}
	f.dispatcher = NewDispatcher(f.store, f.sessions, f.telegram, f.offers, f.partner, f.views, observability.NewLogger())
	return f
}

func textUpdate(telegramID int64, text string) telegram.Update {
	return telegram.Update{FromID: telegramID, FromName: "Sara", ChatID: telegramID, Text: text}
}

func callbackUpdate(telegramID int64, data string) telegram.Update {
	return telegram.Update{FromID: telegramID, FromName: "Sara", ChatID: telegramID, MessageID: 7, CallbackID: "cb1", CallbackData: data}
}

func TestStartSendsMenu(t *testing.T) {
	f := newDispatchFixture()

	f.dispatcher.HandleUpdate(context.Background(), textUpdate(100, "/start"))

	last := f.telegram.lastText()
	if last.text != textWelcome {
		t.Fatalf("expected welcome text, got %q", last.text)
	}
	if len(last.opts.ReplyButtons) == 0 {
		t.Fatal("expected the main menu keyboard")
	}
}

func TestAddChannelFlow(t *testing.T) {
	f := newDispatchFixture()
	f.telegram.chats["mychannel"] = telegram.Chat{ID: -500, Title: "My Channel", Username: "mychannel", MemberCount: 12000}
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuAddChannel))
	f.dispatcher.HandleUpdate(ctx, textUpdate(100, "@mychannel"))
	if last := f.telegram.lastText(); last.text != textAskSheba {
		t.Fatalf("expected sheba prompt, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, "not-a-sheba"))
	if last := f.telegram.lastText(); last.text != textBadSheba {
		t.Fatalf("expected sheba rejection, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, "IR012345678901234567890123"))
	if last := f.telegram.lastText(); last.text != textChannelAdded {
		t.Fatalf("expected registration confirmation, got %q", last.text)
	}

	if len(f.store.channels) != 1 {
		t.Fatalf("expected one channel, got %d", len(f.store.channels))
	}
	for _, ch := range f.store.channels {
		if ch.MemberCount != 12000 {
			t.Errorf("member count = %d, want 12000", ch.MemberCount)
		}
		if ch.ViewEfficiency != 1200 {
			t.Errorf("view efficiency = %d, want 1200", ch.ViewEfficiency)
		}
		account := f.store.bankAccounts[ch.PayoutAccountID]
		if account.Sheba != "IR012345678901234567890123" {
			t.Errorf("payout sheba = %q", account.Sheba)
		}
	}
	if f.partner.triggers != 1 {
		t.Errorf("partner triggers = %d, want 1", f.partner.triggers)
	}

	sess, _ := f.sessions.Get(ctx, 100)
	if sess.State != session.StateIdle {
		t.Errorf("session state = %q, want idle", sess.State)
	}
}

func TestAddChannelExistingAttachesAdmin(t *testing.T) {
	f := newDispatchFixture()
	f.telegram.chats["known"] = telegram.Chat{ID: -700, Title: "Known", Username: "known", MemberCount: 100}
	existing := store.Channel{ID: uuid.New(), Title: "Known", TelegramID: -700}
	f.store.channels[existing.ID] = existing
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuAddChannel))
	f.dispatcher.HandleUpdate(ctx, textUpdate(100, "known"))

	if last := f.telegram.lastText(); last.text != textChannelExists {
		t.Fatalf("expected already-registered notice, got %q", last.text)
	}
	if len(f.store.admins[existing.ID]) != 1 {
		t.Fatalf("expected the user attached as admin, got %v", f.store.admins[existing.ID])
	}
}

func TestAddChannelLookupFailureKeepsState(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuAddChannel))
	f.dispatcher.HandleUpdate(ctx, textUpdate(100, "@nope"))

	if last := f.telegram.lastText(); last.text != textChannelLookup {
		t.Fatalf("expected lookup failure text, got %q", last.text)
	}
	sess, _ := f.sessions.Get(ctx, 100)
	if sess.State != session.StateAddChannel {
		t.Errorf("session state = %q, want add_channel", sess.State)
	}
}

func TestRemoveChannelFlow(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	user, _ := f.store.UpsertUser(ctx, store.UpsertUserParams{TelegramID: 100, FirstName: "Sara"})
	ch := store.Channel{ID: uuid.New(), Title: "Mine", TelegramID: -1}
	f.store.channels[ch.ID] = ch
	f.store.admins[ch.ID] = []uuid.UUID{user.ID}

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuRemoveChannel))
	if last := f.telegram.lastText(); last.text != textPickRemove {
		t.Fatalf("expected channel picker, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, prefixRemove+encodeID(ch.ID)))
	if len(f.store.admins[ch.ID]) != 0 {
		t.Fatalf("expected admin detached, got %v", f.store.admins[ch.ID])
	}
	if f.partner.triggers != 1 {
		t.Errorf("partner triggers = %d, want 1", f.partner.triggers)
	}
}

func TestStickerRegistration(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuSetSticker))
	update := textUpdate(100, "")
	update.StickerFileID = "sticker-42"
	f.dispatcher.HandleUpdate(ctx, update)

	if last := f.telegram.lastText(); last.text != textStickerSaved {
		t.Fatalf("expected sticker confirmation, got %q", last.text)
	}
	user := f.store.users[100]
	if f.store.stickers[user.ID] != "sticker-42" {
		t.Errorf("sticker = %q, want sticker-42", f.store.stickers[user.ID])
	}
}

func TestShotFlowStampsPostAndSamplesViews(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	user, _ := f.store.UpsertUser(ctx, store.UpsertUserParams{TelegramID: 100, FirstName: "Sara"})

	campaign := store.Campaign{ID: uuid.New(), Title: "Winter promo", Status: store.CampaignStatusApproved, Enabled: true}
	f.store.campaigns[campaign.ID] = campaign
	assignment := store.Assignment{ID: uuid.New(), CampaignID: campaign.ID, UserID: user.ID}
	f.store.assignments[assignment.ID] = assignment
	username := "winnerchan"
	channel := store.Channel{ID: uuid.New(), Title: "Winner", Username: &username, TelegramID: -9}
	f.store.channels[channel.ID] = channel
	post := store.Post{ID: uuid.New(), AssignmentID: assignment.ID, ChannelID: channel.ID, MessageID: 33}
	f.store.posts[post.ID] = post
	f.views.counts["winnerchan"] = map[int]int64{33: 777}

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuSendScreenshot))
	if last := f.telegram.lastText(); last.text != textPickShotAd {
		t.Fatalf("expected campaign picker, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, prefixShotClaim+encodeID(assignment.ID)))
	if last := f.telegram.lastText(); last.text != textPickShotPost {
		t.Fatalf("expected post picker, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, prefixShotPost+encodeID(post.ID)))
	photo := textUpdate(100, "")
	photo.PhotoFileID = "shot-1"
	f.dispatcher.HandleUpdate(ctx, photo)

	if last := f.telegram.lastText(); last.text != textShotSaved {
		t.Fatalf("expected shot confirmation, got %q", last.text)
	}
	saved := f.store.posts[post.ID]
	if saved.ShotFileID == nil || *saved.ShotFileID != "shot-1" {
		t.Fatalf("shot file = %v, want shot-1", saved.ShotFileID)
	}
	if saved.Views == nil || *saved.Views != 777 {
		t.Fatalf("views = %v, want 777", saved.Views)
	}
	if logs := f.store.viewLogs[post.ID]; len(logs) != 1 || logs[0] != 777 {
		t.Fatalf("view log = %v, want [777]", logs)
	}
}

func TestChangeShebaFlow(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	user, _ := f.store.UpsertUser(ctx, store.UpsertUserParams{TelegramID: 100, FirstName: "Sara"})

	oldAccount := store.BankAccount{ID: uuid.New(), OwnerID: user.ID, Sheba: "IR000000000000000000000001"}
	f.store.bankAccounts[oldAccount.ID] = oldAccount
	chA := store.Channel{ID: uuid.New(), Title: "Alpha", TelegramID: -1, PayoutAccountID: oldAccount.ID}
	chB := store.Channel{ID: uuid.New(), Title: "Beta", TelegramID: -2, PayoutAccountID: oldAccount.ID}
	f.store.channels[chA.ID] = chA
	f.store.channels[chB.ID] = chB
	f.store.admins[chA.ID] = []uuid.UUID{user.ID}
	f.store.admins[chB.ID] = []uuid.UUID{user.ID}

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuChangeSheba))
	if last := f.telegram.lastText(); last.text != textPickSheba {
		t.Fatalf("expected channel picker, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, prefixSheba+encodeID(chA.ID)))
	if last := f.telegram.lastText(); last.text != textAskNewSheba {
		t.Fatalf("expected new sheba prompt, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, "bogus"))
	if last := f.telegram.lastText(); last.text != textBadSheba {
		t.Fatalf("expected sheba rejection, got %q", last.text)
	}

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, "IR999999999999999999999999"))
	if last := f.telegram.lastText(); last.text != textShebaChanged {
		t.Fatalf("expected exchange confirmation, got %q", last.text)
	}

	// both channels on the old account follow to the new one
	newID := f.store.channels[chA.ID].PayoutAccountID
	if newID == oldAccount.ID {
		t.Fatal("expected channel A repointed to a new account")
	}
	if f.store.channels[chB.ID].PayoutAccountID != newID {
		t.Errorf("expected channel B to follow the exchange")
	}
	if got := f.store.bankAccounts[newID].Sheba; got != "IR999999999999999999999999" {
		t.Errorf("new account sheba = %q, want the submitted one", got)
	}
}

type fakeShotQueue struct {
	posts []uuid.UUID
	files []string
}

func (q *fakeShotQueue) EnqueueShot(_ context.Context, postID uuid.UUID, fileID string) error {
	q.posts = append(q.posts, postID)
	q.files = append(q.files, fileID)
	return nil
}

func TestShotPhotoDefersToQueue(t *testing.T) {
	f := newDispatchFixture()
	queue := &fakeShotQueue{}
	f.dispatcher.SetShotQueue(queue)
	ctx := context.Background()
	user, _ := f.store.UpsertUser(ctx, store.UpsertUserParams{TelegramID: 100, FirstName: "Sara"})

	campaign := store.Campaign{ID: uuid.New(), Title: "Winter promo", Status: store.CampaignStatusApproved, Enabled: true}
	f.store.campaigns[campaign.ID] = campaign
	assignment := store.Assignment{ID: uuid.New(), CampaignID: campaign.ID, UserID: user.ID}
	f.store.assignments[assignment.ID] = assignment
	post := store.Post{ID: uuid.New(), AssignmentID: assignment.ID, ChannelID: uuid.New(), MessageID: 33}
	f.store.posts[post.ID] = post

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuSendScreenshot))
	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, prefixShotClaim+encodeID(assignment.ID)))
	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, prefixShotPost+encodeID(post.ID)))
	photo := textUpdate(100, "")
	photo.PhotoFileID = "shot-1"
	f.dispatcher.HandleUpdate(ctx, photo)

	if last := f.telegram.lastText(); last.text != textShotSaved {
		t.Fatalf("expected shot confirmation, got %q", last.text)
	}
	if len(queue.posts) != 1 || queue.posts[0] != post.ID || queue.files[0] != "shot-1" {
		t.Fatalf("queued shots = %v %v, want one for %s", queue.posts, queue.files, post.ID)
	}
	if saved := f.store.posts[post.ID]; saved.ShotFileID != nil {
		t.Errorf("post stamped inline, want the worker to do it: %v", *saved.ShotFileID)
	}
}

func TestShotPhotoKeepsExistingViews(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	views := int64(500)
	post := store.Post{ID: uuid.New(), ChannelID: uuid.New(), MessageID: 1, Views: &views}
	f.store.posts[post.ID] = post

	if err := f.dispatcher.ReceiveShot(ctx, "shot-2", post.ID); err != nil {
		t.Fatalf("ReceiveShot: %v", err)
	}
	saved := f.store.posts[post.ID]
	if *saved.Views != 500 {
		t.Errorf("views = %d, want untouched 500", *saved.Views)
	}
	if len(f.store.viewLogs[post.ID]) != 0 {
		t.Errorf("expected no extra view log, got %v", f.store.viewLogs[post.ID])
	}
}

func TestFinancialReportTotals(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	user, _ := f.store.UpsertUser(ctx, store.UpsertUserParams{TelegramID: 100, FirstName: "Sara"})

	campaign := store.Campaign{ID: uuid.New(), Title: "Winter promo"}
	f.store.campaigns[campaign.ID] = campaign
	paidPrice := int64(600)
	paid := store.Assignment{ID: uuid.New(), CampaignID: campaign.ID, UserID: user.ID, ReceiptPrice: &paidPrice}
	now := time.Now()
	paid.PaidAt = &now
	f.store.assignments[paid.ID] = paid
	pendingPrice := int64(250)
	pending := store.Assignment{ID: uuid.New(), CampaignID: campaign.ID, UserID: user.ID, ReceiptPrice: &pendingPrice}
	f.store.assignments[pending.ID] = pending

	f.dispatcher.HandleUpdate(ctx, textUpdate(100, menuFinancialReport))

	report := f.telegram.lastText().text
	if !strings.Contains(report, "Paid total: 600") {
		t.Errorf("report missing paid total: %q", report)
	}
	if !strings.Contains(report, "Pending total: 250") {
		t.Errorf("report missing pending total: %q", report)
	}
}

func TestOfferCallbacksRouteToProcessor(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	offerID := uuid.New()
	channelID := uuid.New()
	f.offers.keyboard = telegram.Keyboard{{{Text: "x", CallbackData: "y"}}}

	// Confirm and cancel prefixes start with the toggle prefix, so routing
	// order matters.
	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, push.ConfirmCallback(offerID)))
	if len(f.offers.confirms) != 1 || len(f.offers.toggles) != 0 {
		t.Fatalf("confirm routed wrong: confirms=%d toggles=%d", len(f.offers.confirms), len(f.offers.toggles))
	}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, push.CancelCallback(offerID)))
	if len(f.offers.cancels) != 1 {
		t.Fatalf("cancel not routed, cancels=%d", len(f.offers.cancels))
	}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, push.ToggleCallback(offerID, channelID, 500)))
	if len(f.offers.toggles) != 1 {
		t.Fatalf("toggle not routed, toggles=%d", len(f.offers.toggles))
	}
	if len(f.telegram.edits) != 1 {
		t.Fatalf("expected keyboard refresh after toggle, got %d edits", len(f.telegram.edits))
	}
	if f.telegram.lastAnswer() != textSelectionSaved {
		t.Errorf("toggle answer = %q", f.telegram.lastAnswer())
	}
}

func TestOfferToggleMismatchAnswersWithReason(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	f.offers.toggleErr = push.ErrTariffMismatch

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, push.ToggleCallback(uuid.New(), uuid.New(), 500)))

	if f.telegram.lastAnswer() != textTariffMismatch {
		t.Errorf("answer = %q, want tariff mismatch", f.telegram.lastAnswer())
	}
	if len(f.telegram.edits) != 0 {
		t.Errorf("expected no keyboard edit on mismatch")
	}
}

func TestOfferConfirmConflictNamesWinner(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()
	f.offers.confirmErr = &store.ClaimConflictError{ChannelTitle: "Winner", WinnerName: "@rival"}

	f.dispatcher.HandleUpdate(ctx, callbackUpdate(100, push.ConfirmCallback(uuid.New())))

	answer := f.telegram.lastAnswer()
	if !strings.Contains(answer, "Winner") || !strings.Contains(answer, "@rival") {
		t.Errorf("conflict answer = %q, want channel and winner named", answer)
	}
}
