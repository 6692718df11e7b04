package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/session"
	"adtel/internal/store"
)

// fakeStore is an in-memory Store for processor tests.
type fakeStore struct {
	campaigns  map[uuid.UUID]store.Campaign
	offers     map[uuid.UUID]store.PushOffer
	recipients map[uuid.UUID]store.PushOfferRecipient
	channels   map[uuid.UUID]store.Channel
	users      map[uuid.UUID]store.BotUser
	tariffs    map[uuid.UUID]int64
	payouts    map[uuid.UUID]store.BankAccount

	offerChannels map[uuid.UUID][]uuid.UUID
	claimed       map[uuid.UUID]bool

	claimErr    error
	claims      []store.ClaimChannelsParams
	assignments map[uuid.UUID]store.Assignment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:     map[uuid.UUID]store.Campaign{},
		offers:        map[uuid.UUID]store.PushOffer{},
		recipients:    map[uuid.UUID]store.PushOfferRecipient{},
		channels:      map[uuid.UUID]store.Channel{},
		users:         map[uuid.UUID]store.BotUser{},
		tariffs:       map[uuid.UUID]int64{},
		payouts:       map[uuid.UUID]store.BankAccount{},
		offerChannels: map[uuid.UUID][]uuid.UUID{},
		claimed:       map[uuid.UUID]bool{},
		assignments:   map[uuid.UUID]store.Assignment{},
	}
}

func (f *fakeStore) GetCampaignByID(_ context.Context, id uuid.UUID) (store.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return store.Campaign{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetPushOfferByID(_ context.Context, id uuid.UUID) (store.PushOffer, error) {
	o, ok := f.offers[id]
	if !ok {
		return store.PushOffer{}, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) ListOfferRemainingChannelIDs(_ context.Context, offerID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range f.offerChannels[offerID] {
		if !f.claimed[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOfferRecipients(_ context.Context, offerID uuid.UUID) ([]store.PushOfferRecipient, error) {
	var out []store.PushOfferRecipient
	for _, r := range f.recipients {
		if r.OfferID == offerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOfferRecipient(_ context.Context, offerID, userID uuid.UUID) (store.PushOfferRecipient, error) {
	for _, r := range f.recipients {
		if r.OfferID == offerID && r.UserID == userID {
			return r, nil
		}
	}
	return store.PushOfferRecipient{}, store.ErrNotFound
}

func (f *fakeStore) SetRecipientMessageID(_ context.Context, id uuid.UUID, messageID int) error {
	r, ok := f.recipients[id]
	if !ok {
		return store.ErrNotFound
	}
	r.MessageID = &messageID
	f.recipients[id] = r
	return nil
}

func (f *fakeStore) SetRecipientStatus(_ context.Context, id uuid.UUID, status string) error {
	r, ok := f.recipients[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	f.recipients[id] = r
	return nil
}

func (f *fakeStore) SetOfferStatus(_ context.Context, id uuid.UUID, status string) error {
	o, ok := f.offers[id]
	if !ok || o.Status != store.PushOfferStatusSent {
		return store.ErrNotFound
	}
	o.Status = status
	f.offers[id] = o
	return nil
}

func (f *fakeStore) ListStaleOffers(_ context.Context, cutoff time.Time) ([]store.PushOffer, error) {
	var out []store.PushOffer
	for _, o := range f.offers {
		if o.Status == store.PushOfferStatusSent && o.CreatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListChannelsByIDs(_ context.Context, ids []uuid.UUID) ([]store.Channel, error) {
	var out []store.Channel
	for _, id := range ids {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
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

func (f *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (store.BotUser, error) {
	u, ok := f.users[id]
	if !ok {
		return store.BotUser{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetPublisherTariff(_ context.Context, _, channelID uuid.UUID) (int64, error) {
	t, ok := f.tariffs[channelID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetPayoutAccount(_ context.Context, channelID uuid.UUID) (store.BankAccount, error) {
	a, ok := f.payouts[channelID]
	if !ok {
		return store.BankAccount{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ClaimChannels(_ context.Context, params store.ClaimChannelsParams) (store.Assignment, error) {
	if f.claimErr != nil {
		return store.Assignment{}, f.claimErr
	}
	f.claims = append(f.claims, params)
	for _, id := range params.ChannelIDs {
		f.claimed[id] = true
	}
	assignment := store.Assignment{
		ID:         uuid.New(),
		CampaignID: params.CampaignID,
		UserID:     params.UserID,
		Tariff:     params.Tariff,
	}
	for _, account := range f.payouts {
		if account.ID == params.PayoutAccountID {
			assignment.ShebaNumber = account.Sheba
			assignment.ShebaOwner = account.Title
			break
		}
	}
	f.assignments[assignment.ID] = assignment
	return assignment, nil
}

func (f *fakeStore) ListOpenOffersForChannel(_ context.Context, campaignID, channelID uuid.UUID) ([]store.PushOffer, error) {
	var out []store.PushOffer
	for offerID, channels := range f.offerChannels {
		offer, ok := f.offers[offerID]
		if !ok || offer.CampaignID != campaignID {
			continue
		}
		if offer.Status != store.PushOfferStatusSent && offer.Status != store.PushOfferStatusReceived {
			continue
		}
		for _, id := range channels {
			if id == channelID {
				out = append(out, offer)
				break
			}
		}
	}
	return out, nil
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

func (m *memorySessions) Save(_ context.Context, sess session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.TelegramID] = sess
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
type sentMessage struct {
	ChatID   int64
	Text     string
	Keyboard telegram.Keyboard
}

type editedMarkup struct {
	ChatID    int64
	MessageID int
	Keyboard  telegram.Keyboard
}

type deletedMessage struct {
	ChatID    int64
	MessageID int
}

type fakeTelegram struct {
	nextMessageID int
	sendErr       error

	sent    []sentMessage
	edits   []editedMarkup
	deletes []deletedMessage
}

func (f *fakeTelegram) SendText(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.Message, error) {
	if f.sendErr != nil {
		return telegram.Message{}, f.sendErr
	}
	f.nextMessageID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Keyboard: opts.Keyboard})
	return telegram.Message{ChatID: chatID, MessageID: f.nextMessageID}, nil
}

func (f *fakeTelegram) SendFile(_ context.Context, chatID int64, _ string, file telegram.FileRef, caption string, opts telegram.SendOptions) (telegram.Message, telegram.SentFile, error) {
	if f.sendErr != nil {
		return telegram.Message{}, telegram.SentFile{}, f.sendErr
	}
	f.nextMessageID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: caption, Keyboard: opts.Keyboard})
	fileID := file.TelegramFileID
	if fileID == "" {
		fileID = fmt.Sprintf("uploaded-%d", f.nextMessageID)
	}
	return telegram.Message{ChatID: chatID, MessageID: f.nextMessageID}, telegram.SentFile{FileID: fileID}, nil
}

func (f *fakeTelegram) ForwardMessage(_ context.Context, toChatID, fromChatID int64, messageID int) (telegram.Message, error) {
	f.nextMessageID++
	f.sent = append(f.sent, sentMessage{ChatID: toChatID, Text: fmt.Sprintf("forward %d/%d", fromChatID, messageID)})
	return telegram.Message{ChatID: toChatID, MessageID: f.nextMessageID}, nil
}

func (f *fakeTelegram) EditCaption(_ context.Context, chatID int64, messageID int, _ string, keyboard telegram.Keyboard) error {
	f.edits = append(f.edits, editedMarkup{ChatID: chatID, MessageID: messageID, Keyboard: keyboard})
	return nil
}

func (f *fakeTelegram) EditReplyMarkup(_ context.Context, chatID int64, messageID int, keyboard telegram.Keyboard) error {
	f.edits = append(f.edits, editedMarkup{ChatID: chatID, MessageID: messageID, Keyboard: keyboard})
	return nil
}

func (f *fakeTelegram) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	f.deletes = append(f.deletes, deletedMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *fakeTelegram) AnswerCallback(_ context.Context, _ string, _ string) error {
	return nil
}

func (f *fakeTelegram) FileURL(_ context.Context, fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (f *fakeTelegram) ChatInfo(_ context.Context, username string) (telegram.Chat, error) {
	return telegram.Chat{}, errors.New("not implemented")
}


// fakeRenderer records render calls.
type fakeRenderer struct {
	renderErr error
	rendered  []store.Assignment
}

func (f *fakeRenderer) RenderAssignment(_ context.Context, assignment store.Assignment, _ []store.Channel) error {
	if f.renderErr != nil {
		return f.renderErr
	}
	f.rendered = append(f.rendered, assignment)
	return nil
}
