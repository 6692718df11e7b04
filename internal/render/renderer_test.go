package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"adtel/internal/clients/shortlink"
	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/store"
)

type fakeStore struct {
	campaigns map[uuid.UUID]store.Campaign
	users     map[uuid.UUID]store.BotUser
	channels  map[uuid.UUID]store.Channel
	contents  []store.Content
	files     map[uuid.UUID][]store.ContentFile
	links     map[uuid.UUID][]store.ContentLink
	buttons   map[uuid.UUID][]store.ContentButton

	posts       []store.Post
	shortLinks  []store.ShortLink
	postLinks   map[uuid.UUID][]uuid.UUID
	cachedFiles map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:   map[uuid.UUID]store.Campaign{},
		users:       map[uuid.UUID]store.BotUser{},
		channels:    map[uuid.UUID]store.Channel{},
		files:       map[uuid.UUID][]store.ContentFile{},
		links:       map[uuid.UUID][]store.ContentLink{},
		buttons:     map[uuid.UUID][]store.ContentButton{},
		postLinks:   map[uuid.UUID][]uuid.UUID{},
		cachedFiles: map[uuid.UUID]string{},
	}
}

func (f *fakeStore) GetCampaignByID(_ context.Context, id uuid.UUID) (store.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return store.Campaign{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ListCampaignContents(_ context.Context, campaignID uuid.UUID) ([]store.Content, error) {
	var out []store.Content
	for _, c := range f.contents {
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetContentByID(_ context.Context, id uuid.UUID) (store.Content, error) {
	for _, c := range f.contents {
		if c.ID == id {
			return c, nil
		}
	}
	return store.Content{}, store.ErrNotFound
}

func (f *fakeStore) ListContentFiles(_ context.Context, contentID uuid.UUID) ([]store.ContentFile, error) {
	return f.files[contentID], nil
}

func (f *fakeStore) ListContentLinks(_ context.Context, contentID uuid.UUID) ([]store.ContentLink, error) {
	return f.links[contentID], nil
}

func (f *fakeStore) ListContentButtons(_ context.Context, contentID uuid.UUID) ([]store.ContentButton, error) {
	return f.buttons[contentID], nil
}

func (f *fakeStore) CountPostsForContent(_ context.Context, contentID uuid.UUID) (int, error) {
	count := 0
	for _, p := range f.posts {
		if p.ContentID == contentID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) SetContentMessageID(_ context.Context, id uuid.UUID, messageID int) error {
	for i, c := range f.contents {
		if c.ID == id {
			if c.MessageID != nil {
				return store.ErrNotFound
			}
			f.contents[i].MessageID = &messageID
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UpdateContentFileTelegramID(_ context.Context, id uuid.UUID, fileID string) error {
	f.cachedFiles[id] = fileID
	for contentID, files := range f.files {
		for i, file := range files {
			if file.ID == id {
				f.files[contentID][i].TelegramFileID = &fileID
			}
		}
	}
	return nil
}

func (f *fakeStore) CreatePost(_ context.Context, params store.CreatePostParams) (store.Post, error) {
	post := store.Post{
		ID:           uuid.New(),
		AssignmentID: params.AssignmentID,
		ContentID:    params.ContentID,
		ChannelID:    params.ChannelID,
		MessageID:    params.MessageID,
	}
	f.posts = append(f.posts, post)
	return post, nil
}

func (f *fakeStore) CreateShortLink(_ context.Context, params store.CreateShortLinkParams) (store.ShortLink, error) {
	link := store.ShortLink{
		ID:           uuid.New(),
		LinkID:       params.LinkID,
		AssignmentID: params.AssignmentID,
		ExternalID:   params.ExternalID,
		ShortURL:     params.ShortURL,
	}
	f.shortLinks = append(f.shortLinks, link)
	return link, nil
}

func (f *fakeStore) LinkPostShortLinks(_ context.Context, postID uuid.UUID, shortLinkIDs []uuid.UUID) error {
	f.postLinks[postID] = append(f.postLinks[postID], shortLinkIDs...)
	return nil
}

func (f *fakeStore) GetChannelByID(_ context.Context, id uuid.UUID) (store.Channel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return store.Channel{}, store.ErrNotFound
	}
	return ch, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (store.BotUser, error) {
	u, ok := f.users[id]
	if !ok {
		return store.BotUser{}, store.ErrNotFound
	}
	return u, nil
}

type sentCall struct {
	kind      string // text, file, forward, edit
	chatID    int64
	text      string
	fileType  string
	fileRef   telegram.FileRef
	keyboard  telegram.Keyboard
	messageID int
}

type fakeTelegram struct {
	nextID int
	calls  []sentCall
}

func (f *fakeTelegram) SendText(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.Message, error) {
	f.nextID++
	f.calls = append(f.calls, sentCall{kind: "text", chatID: chatID, text: text, keyboard: opts.Keyboard, messageID: f.nextID})
	return telegram.Message{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeTelegram) SendFile(_ context.Context, chatID int64, fileType string, file telegram.FileRef, caption string, opts telegram.SendOptions) (telegram.Message, telegram.SentFile, error) {
	f.nextID++
	f.calls = append(f.calls, sentCall{kind: "file", chatID: chatID, text: caption, fileType: fileType, fileRef: file, keyboard: opts.Keyboard, messageID: f.nextID})
	fileID := file.TelegramFileID
	if fileID == "" {
		fileID = "uploaded-file-id"
	}
	return telegram.Message{ChatID: chatID, MessageID: f.nextID}, telegram.SentFile{FileID: fileID}, nil
}

func (f *fakeTelegram) ForwardMessage(_ context.Context, toChatID, fromChatID int64, messageID int) (telegram.Message, error) {
	f.nextID++
	f.calls = append(f.calls, sentCall{kind: "forward", chatID: toChatID, messageID: messageID})
	return telegram.Message{ChatID: toChatID, MessageID: f.nextID}, nil
}

func (f *fakeTelegram) EditCaption(_ context.Context, chatID int64, messageID int, caption string, keyboard telegram.Keyboard) error {
	f.calls = append(f.calls, sentCall{kind: "edit", chatID: chatID, text: caption, keyboard: keyboard, messageID: messageID})
	return nil
}

func (f *fakeTelegram) EditReplyMarkup(_ context.Context, chatID int64, messageID int, keyboard telegram.Keyboard) error {
	f.calls = append(f.calls, sentCall{kind: "edit", chatID: chatID, keyboard: keyboard, messageID: messageID})
	return nil
}

func (f *fakeTelegram) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return nil
}

func (f *fakeTelegram) AnswerCallback(_ context.Context, _ string, _ string) error { return nil }

func (f *fakeTelegram) FileURL(_ context.Context, fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (f *fakeTelegram) ChatInfo(_ context.Context, username string) (telegram.Chat, error) {
	return telegram.Chat{}, errors.New("not implemented")
}


func (f *fakeTelegram) callsOfKind(kind string) []sentCall {
	var out []sentCall
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type fakeShortener struct {
	err     error
	minted  []shortlink.ShortenRequest
	counter int
}

func (f *fakeShortener) Shorten(_ context.Context, params shortlink.ShortenRequest) (shortlink.ShortenResponse, error) {
	if f.err != nil {
		return shortlink.ShortenResponse{}, f.err
	}
	f.counter++
	f.minted = append(f.minted, params)
	return shortlink.ShortenResponse{
		ID:       "ext-" + strings.Repeat("x", f.counter),
		ShortURL: "https://sho.rt/" + strings.Repeat("x", f.counter),
	}, nil
}

type fixture struct {
	store     *fakeStore
	telegram  *fakeTelegram
	shortener *fakeShortener
	renderer  *Renderer

	campaign   store.Campaign
	admin      store.BotUser
	mother     store.Channel
	winner     store.Channel
	assignment store.Assignment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := newFakeStore()

	campaign := store.Campaign{ID: uuid.New(), Title: "Winter promo", Status: store.CampaignStatusApproved}
	fs.campaigns[campaign.ID] = campaign

	admin := store.BotUser{ID: uuid.New(), TelegramID: 5001, FirstName: "Admin"}
	fs.users[admin.ID] = admin

	motherTag := "mothernews"
	mother := store.Channel{ID: uuid.New(), Title: "Mother", Username: &motherTag, TelegramID: -200}
	fs.channels[mother.ID] = mother

	winnerTag := "winnerchan"
	winner := store.Channel{ID: uuid.New(), Title: "Winner", Username: &winnerTag, TelegramID: -201, ViewEfficiency: 900}
	fs.channels[winner.ID] = winner

	assignment := store.Assignment{ID: uuid.New(), CampaignID: campaign.ID, UserID: admin.ID, Tariff: 500}

	tg := &fakeTelegram{}
	shortener := &fakeShortener{}
	renderer := New(fs, tg, shortener, observability.NewLogger())

	return &fixture{
		store: fs, telegram: tg, shortener: shortener, renderer: renderer,
		campaign: campaign, admin: admin, mother: mother, winner: winner, assignment: assignment,
	}
}

func (f *fixture) addContent(viewType, text string) store.Content {
	content := store.Content{
		ID:              uuid.New(),
		CampaignID:      f.campaign.ID,
		ViewType:        viewType,
		Text:            text,
		MotherChannelID: &f.mother.ID,
	}
	f.store.contents = append(f.store.contents, content)
	return content
}

func TestRenderer_TotalContentCreatedOnceThenForwarded(t *testing.T) {
	f := newFixture(t)
	f.addContent(store.ContentViewTypeTotal, "Buy our things")
	ctx := context.Background()

	if err := f.renderer.RenderAssignment(ctx, f.assignment, []store.Channel{f.winner}); err != nil {
		t.Fatalf("first render failed: %v", err)
	}

	texts := f.telegram.callsOfKind("text")
	created := 0
	for _, c := range texts {
		if c.chatID == f.mother.TelegramID && c.text == "Buy our things" {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected content posted once to mother channel, got %d", created)
	}
	if f.store.contents[0].MessageID == nil {
		t.Fatal("expected message id persisted on total content")
	}
	firstMessageID := *f.store.contents[0].MessageID

	forwards := f.telegram.callsOfKind("forward")
	if len(forwards) != 1 || forwards[0].chatID != f.admin.TelegramID {
		t.Fatalf("expected 1 forward to the admin, got %+v", forwards)
	}
	if len(f.store.posts) != 1 || f.store.posts[0].MessageID != firstMessageID {
		t.Fatalf("expected 1 post row on the shared message, got %+v", f.store.posts)
	}

	// second assignment forwards the same message without recreating it
	second := store.Assignment{ID: uuid.New(), CampaignID: f.campaign.ID, UserID: f.admin.ID, Tariff: 500}
	if err := f.renderer.RenderAssignment(ctx, second, []store.Channel{f.winner}); err != nil {
		t.Fatalf("second render failed: %v", err)
	}
	if *f.store.contents[0].MessageID != firstMessageID {
		t.Error("total content message id must never change")
	}
	created = 0
	for _, c := range f.telegram.callsOfKind("text") {
		if c.chatID == f.mother.TelegramID && c.text == "Buy our things" {
			created++
		}
	}
	if created != 1 {
		t.Errorf("total content recreated: %d mother-channel posts", created)
	}
	if len(f.telegram.callsOfKind("forward")) != 2 {
		t.Error("expected a forward per assignment")
	}
}

func TestRenderer_TotalContentWithLinksEditsBeforeForward(t *testing.T) {
	f := newFixture(t)
	content := f.addContent(store.ContentViewTypeTotal, "Visit https://example.com/shop today")
	f.store.links[content.ID] = []store.ContentLink{
		{ID: uuid.New(), ContentID: content.ID, URL: "https://example.com/shop"},
	}
	ctx := context.Background()

	if err := f.renderer.RenderAssignment(ctx, f.assignment, []store.Channel{f.winner}); err != nil {
		t.Fatalf("first render failed: %v", err)
	}
	// first render creates with the minted link substituted
	creation := f.telegram.callsOfKind("text")[0]
	if !strings.Contains(creation.text, "https://sho.rt/") || strings.Contains(creation.text, "example.com") {
		t.Errorf("expected short link substituted into body, got %q", creation.text)
	}
	if f.shortener.minted[0].UTMContent != f.assignment.ID.String() {
		t.Errorf("expected utm_content fallback to assignment id, got %q", f.shortener.minted[0].UTMContent)
	}

	// second render refreshes tracking in place, then forwards
	second := store.Assignment{ID: uuid.New(), CampaignID: f.campaign.ID, UserID: f.admin.ID}
	if err := f.renderer.RenderAssignment(ctx, second, []store.Channel{f.winner}); err != nil {
		t.Fatalf("second render failed: %v", err)
	}
	edits := f.telegram.callsOfKind("edit")
	if len(edits) != 1 {
		t.Fatalf("expected 1 caption edit on re-render, got %d", len(edits))
	}
	if edits[0].messageID != *f.store.contents[0].MessageID {
		t.Error("edit must target the shared message")
	}
	if len(f.store.shortLinks) != 2 {
		t.Errorf("expected a short link per assignment, got %d", len(f.store.shortLinks))
	}
}

func TestRenderer_PartialContentRotatesFiles(t *testing.T) {
	f := newFixture(t)
	content := f.addContent(store.ContentViewTypePartial, "Fresh deal")
	urlA := "https://cdn.example/a.jpg"
	urlB := "https://cdn.example/b.jpg"
	f.store.files[content.ID] = []store.ContentFile{
		{ID: uuid.New(), ContentID: content.ID, FileType: store.FileTypePhoto, FileRef: urlA},
		{ID: uuid.New(), ContentID: content.ID, FileType: store.FileTypePhoto, FileRef: urlB},
	}

	second := store.Channel{ID: uuid.New(), Title: "Second", TelegramID: -202}
	third := store.Channel{ID: uuid.New(), Title: "Third", TelegramID: -203}
	f.store.channels[second.ID] = second
	f.store.channels[third.ID] = third

	err := f.renderer.RenderAssignment(context.Background(), f.assignment,
		[]store.Channel{f.winner, second, third})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	files := f.telegram.callsOfKind("file")
	if len(files) != 3 {
		t.Fatalf("expected a fresh message per channel, got %d", len(files))
	}
	// rotation: a, b, a
	if files[0].fileRef.URL != urlA || files[1].fileRef.URL != urlB || files[2].fileRef.URL != urlA {
		t.Errorf("unexpected rotation: %q %q %q", files[0].fileRef.URL, files[1].fileRef.URL, files[2].fileRef.URL)
	}
	// first upload caches the platform file id, later sends reuse it
	if files[1].fileRef.TelegramFileID != "" {
		t.Errorf("second file's first upload should go by url, got cached id %q", files[1].fileRef.TelegramFileID)
	}
	if files[2].fileRef.TelegramFileID == "" {
		t.Error("third send should reuse the cached file id for file A")
	}
	if len(f.store.posts) != 3 {
		t.Errorf("expected 3 post rows, got %d", len(f.store.posts))
	}
	seen := map[uuid.UUID]bool{}
	for _, p := range f.store.posts {
		seen[p.ChannelID] = true
	}
	if len(seen) != 3 {
		t.Error("expected one post per channel")
	}
}

func TestRenderer_MintFailureKeepsLongLink(t *testing.T) {
	f := newFixture(t)
	content := f.addContent(store.ContentViewTypePartial, "Go to https://example.com/buy now")
	f.store.links[content.ID] = []store.ContentLink{
		{ID: uuid.New(), ContentID: content.ID, URL: "https://example.com/buy"},
	}
	f.shortener.err = errors.New("service down")

	if err := f.renderer.RenderAssignment(context.Background(), f.assignment, []store.Channel{f.winner}); err != nil {
		t.Fatalf("render must degrade, not fail: %v", err)
	}

	creation := f.telegram.callsOfKind("text")[0]
	if !strings.Contains(creation.text, "https://example.com/buy") {
		t.Errorf("expected original url kept on mint failure, got %q", creation.text)
	}
	if len(f.store.shortLinks) != 0 {
		t.Error("no short link rows on mint failure")
	}
}

func TestRenderer_ButtonsGroupedByRow(t *testing.T) {
	f := newFixture(t)
	content := f.addContent(store.ContentViewTypePartial, "Press below")
	urlA, urlB, urlC := "https://a.example", "https://b.example", "https://c.example"
	buttonA := store.ContentButton{ID: uuid.New(), ContentID: content.ID, Text: "A", URL: &urlA, Row: 0, Col: 0}
	buttonB := store.ContentButton{ID: uuid.New(), ContentID: content.ID, Text: "B", URL: &urlB, Row: 0, Col: 1}
	buttonC := store.ContentButton{ID: uuid.New(), ContentID: content.ID, Text: "C", URL: &urlC, Row: 1, Col: 0}
	f.store.buttons[content.ID] = []store.ContentButton{buttonA, buttonB, buttonC}
	// button C is bound to a tracked link
	f.store.links[content.ID] = []store.ContentLink{
		{ID: uuid.New(), ContentID: content.ID, URL: urlC, ButtonID: &buttonC.ID},
	}

	if err := f.renderer.RenderAssignment(context.Background(), f.assignment, []store.Channel{f.winner}); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	creation := f.telegram.callsOfKind("text")[0]
	if len(creation.keyboard) != 2 {
		t.Fatalf("expected 2 keyboard rows, got %d", len(creation.keyboard))
	}
	if len(creation.keyboard[0]) != 2 || len(creation.keyboard[1]) != 1 {
		t.Errorf("unexpected row layout: %v", creation.keyboard)
	}
	if !strings.HasPrefix(creation.keyboard[1][0].URL, "https://sho.rt/") {
		t.Errorf("bound button should carry the minted url, got %q", creation.keyboard[1][0].URL)
	}
}

func TestRenderer_BarePostLinkSendsNoticeOnly(t *testing.T) {
	f := newFixture(t)
	link := "https://t.me/somechannel/42"
	content := store.Content{
		ID:         uuid.New(),
		CampaignID: f.campaign.ID,
		ViewType:   store.ContentViewTypeTotal,
		PostLink:   &link,
	}
	f.store.contents = append(f.store.contents, content)

	if err := f.renderer.RenderAssignment(context.Background(), f.assignment, []store.Channel{f.winner}); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if len(f.store.posts) != 0 {
		t.Error("bare post link must not create post rows")
	}
	found := false
	for _, c := range f.telegram.callsOfKind("text") {
		if c.chatID == f.admin.TelegramID && strings.Contains(c.text, link) {
			found = true
		}
	}
	if !found {
		t.Error("expected notice with the post link sent to the admin")
	}
}

func TestRenderer_ConditionsMentionMultipleChannels(t *testing.T) {
	f := newFixture(t)
	f.addContent(store.ContentViewTypePartial, "Hello")
	second := store.Channel{ID: uuid.New(), Title: "Second", TelegramID: -202}
	f.store.channels[second.ID] = second

	if err := f.renderer.RenderAssignment(context.Background(), f.assignment, []store.Channel{f.winner, second}); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	var conditions string
	for _, c := range f.telegram.callsOfKind("text") {
		if c.chatID == f.admin.TelegramID && strings.Contains(c.text, "Terms:") {
			conditions = c.text
		}
	}
	if conditions == "" {
		t.Fatal("expected conditions message to the admin")
	}
	if !strings.Contains(conditions, "each of your claimed channels") {
		t.Error("expected the multi-channel clause")
	}

	audit := false
	for _, c := range f.telegram.callsOfKind("text") {
		if c.chatID == f.mother.TelegramID && strings.Contains(c.text, "claimed by") {
			audit = true
		}
	}
	if !audit {
		t.Error("expected audit message in the mother channel")
	}
}
