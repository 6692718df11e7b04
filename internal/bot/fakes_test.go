package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/session"
	"adtel/internal/store"
)

// fakeStore is an in-memory Store for dispatcher tests.
type fakeStore struct {
	users        map[int64]store.BotUser
	channels     map[uuid.UUID]store.Channel
	admins       map[uuid.UUID][]uuid.UUID // channel -> users
	bankAccounts map[uuid.UUID]store.BankAccount
	campaigns    map[uuid.UUID]store.Campaign
	assignments  map[uuid.UUID]store.Assignment
	posts        map[uuid.UUID]store.Post

	stickers map[uuid.UUID]string
	viewLogs map[uuid.UUID][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[int64]store.BotUser{},
		channels:     map[uuid.UUID]store.Channel{},
		admins:       map[uuid.UUID][]uuid.UUID{},
		bankAccounts: map[uuid.UUID]store.BankAccount{},
		campaigns:    map[uuid.UUID]store.Campaign{},
		assignments:  map[uuid.UUID]store.Assignment{},
		posts:        map[uuid.UUID]store.Post{},
		stickers:     map[uuid.UUID]string{},
		viewLogs:     map[uuid.UUID][]int64{},
	}
}

func (f *fakeStore) UpsertUser(_ context.Context, params store.UpsertUserParams) (store.BotUser, error) {
	if u, ok := f.users[params.TelegramID]; ok {
		return u, nil
	}
	u := store.BotUser{ID: uuid.New(), TelegramID: params.TelegramID, Username: params.Username, FirstName: params.FirstName}
	f.users[params.TelegramID] = u
	return u, nil
}

func (f *fakeStore) SetUserSticker(_ context.Context, userID uuid.UUID, fileID string) error {
	f.stickers[userID] = fileID
	return nil
}

func (f *fakeStore) ListUserChannels(_ context.Context, userID uuid.UUID) ([]store.Channel, error) {
	var out []store.Channel
	for chID, userIDs := range f.admins {
		for _, id := range userIDs {
			if id == userID {
				out = append(out, f.channels[chID])
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetChannelByID(_ context.Context, id uuid.UUID) (store.Channel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return store.Channel{}, store.ErrNotFound
	}
	return ch, nil
}

func (f *fakeStore) GetChannelByTelegramID(_ context.Context, telegramID int64) (store.Channel, error) {
	for _, ch := range f.channels {
		if ch.TelegramID == telegramID {
			return ch, nil
		}
	}
	return store.Channel{}, store.ErrNotFound
}

func (f *fakeStore) CreateChannel(_ context.Context, params store.CreateChannelParams) (store.Channel, error) {
	ch := store.Channel{
		ID:              uuid.New(),
		Title:           params.Title,
		Username:        params.Username,
		TelegramID:      params.TelegramID,
		MemberCount:     params.MemberCount,
		ViewEfficiency:  params.ViewEfficiency,
		PayoutAccountID: params.PayoutAccountID,
	}
	f.channels[ch.ID] = ch
	f.admins[ch.ID] = append(f.admins[ch.ID], params.AdminUserID)
	return ch, nil
}

func (f *fakeStore) AddChannelAdmin(_ context.Context, channelID, userID uuid.UUID) error {
	f.admins[channelID] = append(f.admins[channelID], userID)
	return nil
}

func (f *fakeStore) RemoveChannelAdmin(_ context.Context, channelID, userID uuid.UUID) error {
	kept := f.admins[channelID][:0]
	removed := false
	for _, id := range f.admins[channelID] {
		if id == userID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	f.admins[channelID] = kept
	if !removed {
		return store.ErrNotFound
	}
	return nil
}

func (f *fakeStore) CreateBankAccount(_ context.Context, ownerID uuid.UUID, sheba, title string) (store.BankAccount, error) {
	account := store.BankAccount{ID: uuid.New(), OwnerID: ownerID, Sheba: sheba, Title: title}
	f.bankAccounts[account.ID] = account
	return account, nil
}

func (f *fakeStore) ExchangeBankAccount(_ context.Context, fromID, toID uuid.UUID) (int64, error) {
	var moved int64
	for id, ch := range f.channels {
		if ch.PayoutAccountID == fromID {
			ch.PayoutAccountID = toID
			f.channels[id] = ch
			moved++
		}
	}
	return moved, nil
}

func (f *fakeStore) ListOpenCampaigns(_ context.Context) ([]store.Campaign, error) {
	var out []store.Campaign
	for _, c := range f.campaigns {
		if c.Status == store.CampaignStatusApproved && c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCampaignByID(_ context.Context, id uuid.UUID) (store.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return store.Campaign{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ListUserAssignments(_ context.Context, userID uuid.UUID) ([]store.Assignment, error) {
	var out []store.Assignment
	for _, a := range f.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPostsByAssignment(_ context.Context, assignmentID uuid.UUID) ([]store.Post, error) {
	var out []store.Post
	for _, p := range f.posts {
		if p.AssignmentID == assignmentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetPostByID(_ context.Context, id uuid.UUID) (store.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return store.Post{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) SetPostShot(_ context.Context, id uuid.UUID, fileID string) error {
	p, ok := f.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	p.ShotFileID = &fileID
	p.ShotAt = &now
	f.posts[id] = p
	return nil
}

func (f *fakeStore) UpdatePostViews(_ context.Context, id uuid.UUID, views int64) error {
	p, ok := f.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Views = &views
	f.posts[id] = p
	return nil
}

func (f *fakeStore) AppendPostViewLog(_ context.Context, postID uuid.UUID, views int64) error {
	f.viewLogs[postID] = append(f.viewLogs[postID], views)
	return nil
}

// memorySessions is an in-memory session.Store.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[int64]session.Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[int64]session.Session{}}
}

func (m *memorySessions) Get(_ context.Context, telegramID int64) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[telegramID]; ok {
		return s, nil
	}
	return session.Session{TelegramID: telegramID, State: session.StateIdle}, nil
}

func (m *memorySessions) Save(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.sessions[s.TelegramID] = s
	return nil
}

func (m *memorySessions) Clear(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, telegramID)
	return nil
}

func (m *memorySessions) ListActive(_ context.Context) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

// fakeTelegram records outbound calls.
type sentText struct {
	chatID int64
	text   string
	opts   telegram.SendOptions
}

type fakeTelegram struct {
	nextMessageID int
	chats         map[string]telegram.Chat

	sent    []sentText
	edits   []telegram.Keyboard
	deletes []int
	answers []string
	fileErr error
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{chats: map[string]telegram.Chat{}}
}

func (f *fakeTelegram) SendText(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.Message, error) {
	f.sent = append(f.sent, sentText{chatID: chatID, text: text, opts: opts})
	f.nextMessageID++
	return telegram.Message{ChatID: chatID, MessageID: f.nextMessageID}, nil
}

func (f *fakeTelegram) SendFile(_ context.Context, chatID int64, _ string, _ telegram.FileRef, caption string, opts telegram.SendOptions) (telegram.Message, telegram.SentFile, error) {
	f.sent = append(f.sent, sentText{chatID: chatID, text: caption, opts: opts})
	f.nextMessageID++
	return telegram.Message{ChatID: chatID, MessageID: f.nextMessageID}, telegram.SentFile{}, nil
}

func (f *fakeTelegram) ForwardMessage(_ context.Context, toChatID, _ int64, _ int) (telegram.Message, error) {
	f.nextMessageID++
	return telegram.Message{ChatID: toChatID, MessageID: f.nextMessageID}, nil
}

func (f *fakeTelegram) EditCaption(_ context.Context, _ int64, _ int, _ string, _ telegram.Keyboard) error {
	return nil
}

func (f *fakeTelegram) EditReplyMarkup(_ context.Context, _ int64, _ int, keyboard telegram.Keyboard) error {
	f.edits = append(f.edits, keyboard)
	return nil
}

func (f *fakeTelegram) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.deletes = append(f.deletes, messageID)
	return nil
}

func (f *fakeTelegram) AnswerCallback(_ context.Context, _ string, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTelegram) FileURL(_ context.Context, fileID string) (string, error) {
	if f.fileErr != nil {
		return "", f.fileErr
	}
	return "https://files.example/" + fileID, nil
}

func (f *fakeTelegram) ChatInfo(_ context.Context, username string) (telegram.Chat, error) {
	chat, ok := f.chats[username]
	if !ok {
		return telegram.Chat{}, errors.New("chat not found")
	}
	return chat, nil
}

func (f *fakeTelegram) lastText() sentText {
	if len(f.sent) == 0 {
		return sentText{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTelegram) lastAnswer() string {
	if len(f.answers) == 0 {
		return ""
	}
	return f.answers[len(f.answers)-1]
}

// fakeOffers records push lifecycle calls.
type offerCall struct {
	offerID   uuid.UUID
	channelID uuid.UUID
}

type fakeOffers struct {
	toggles    []offerCall
	confirms   []uuid.UUID
	cancels    []uuid.UUID
	toggleErr  error
	confirmErr error
	keyboard   telegram.Keyboard
}

func (f *fakeOffers) ToggleSelection(_ context.Context, _ int64, offerID, channelID uuid.UUID) (session.Session, telegram.Keyboard, error) {
	f.toggles = append(f.toggles, offerCall{offerID: offerID, channelID: channelID})
	if f.toggleErr != nil {
		return session.Session{}, nil, f.toggleErr
	}
	return session.Session{}, f.keyboard, nil
}

func (f *fakeOffers) Confirm(_ context.Context, offerID uuid.UUID, _ store.BotUser) error {
	f.confirms = append(f.confirms, offerID)
	return f.confirmErr
}

func (f *fakeOffers) Cancel(_ context.Context, offerID uuid.UUID, _ store.BotUser) error {
	f.cancels = append(f.cancels, offerID)
	return nil
}

// fakePartner counts roster-change notifications.
type fakePartner struct {
	triggers int
}

func (f *fakePartner) TriggerPublisherUpdate(_ context.Context) {
	f.triggers++
}

// fakeViews serves canned view counters per channel username.
type fakeViews struct {
	counts map[string]map[int]int64
	err    error
}

func (f *fakeViews) MessageViews(_ context.Context, channelUsername string, messageIDs []int) (map[int]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[int]int64{}
	for _, id := range messageIDs {
		if v, ok := f.counts[channelUsername][id]; ok {
			out[id] = v
		}
	}
	return out, nil
}
