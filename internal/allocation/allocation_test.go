package allocation

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"adtel/internal/observability"
	"adtel/internal/session"
	"adtel/internal/store"
)

type fakeStore struct {
	campaigns      []store.Campaign
	confirmedViews map[uuid.UUID]int64
	eligible       map[uuid.UUID][]store.EligibleChannel
	admins         map[uuid.UUID][]store.BotUser

	offers []store.CreatePushOfferParams
}

func (f *fakeStore) ListOpenCampaigns(_ context.Context) ([]store.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeStore) ConfirmedViews(_ context.Context, campaignID uuid.UUID) (int64, error) {
	return f.confirmedViews[campaignID], nil
}

func (f *fakeStore) ListEligibleChannels(_ context.Context, campaignID uuid.UUID) ([]store.EligibleChannel, error) {
	return f.eligible[campaignID], nil
}

func (f *fakeStore) ListChannelAdmins(_ context.Context, channelID uuid.UUID) ([]store.BotUser, error) {
	return f.admins[channelID], nil
}

func (f *fakeStore) CreatePushOffer(_ context.Context, params store.CreatePushOfferParams) (store.PushOffer, error) {
	f.offers = append(f.offers, params)
	return store.PushOffer{ID: uuid.New(), CampaignID: params.CampaignID, Status: store.PushOfferStatusSent}, nil
}

type fakeDeliverer struct {
	delivered []uuid.UUID
}

func (f *fakeDeliverer) Deliver(_ context.Context, offerID uuid.UUID, _ ...uuid.UUID) error {
	f.delivered = append(f.delivered, offerID)
	return nil
}

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

func channel(viewEfficiency int64) store.EligibleChannel {
	return store.EligibleChannel{ID: uuid.New(), Title: "ch", ViewEfficiency: viewEfficiency, Tariff: 500}
}

func TestAllocator_SingleGroupOffer(t *testing.T) {
	campaign := store.Campaign{ID: uuid.New(), MaxView: 1000}
	chA := channel(600)
	chB := channel(400)
	admin := store.BotUser{ID: uuid.New(), TelegramID: 1}

	fs := &fakeStore{
		campaigns:      []store.Campaign{campaign},
		confirmedViews: map[uuid.UUID]int64{},
		eligible:       map[uuid.UUID][]store.EligibleChannel{campaign.ID: {chA, chB}},
		admins: map[uuid.UUID][]store.BotUser{
			chA.ID: {admin},
			chB.ID: {admin},
		},
	}
	deliverer := &fakeDeliverer{}
	alloc := New(fs, newMemorySessions(), deliverer, observability.NewLogger())

	if err := alloc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(fs.offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(fs.offers))
	}
	offer := fs.offers[0]
	if len(offer.ChannelIDs) != 2 {
		t.Errorf("expected both channels in the offer, got %v", offer.ChannelIDs)
	}
	if len(offer.UserIDs) != 1 || offer.UserIDs[0] != admin.ID {
		t.Errorf("expected the shared admin as recipient, got %v", offer.UserIDs)
	}
	if len(deliverer.delivered) != 1 {
		t.Errorf("expected the offer delivered, got %d", len(deliverer.delivered))
	}
}

func TestAllocator_NeverExceedsBudget(t *testing.T) {
	cases := []struct {
		name       string
		maxView    int64
		confirmed  int64
		capacities []int64
		wantTotal  int64
		wantPicked int
	}{
		{"exact fit", 1000, 0, []int64{600, 400}, 1000, 2},
		{"skip then fit", 1000, 0, []int64{600, 500, 300}, 900, 2},
		{"all too big", 100, 0, []int64{600, 500}, 0, 0},
		{"budget partly confirmed", 1000, 700, []int64{400, 250, 100}, 350, 2},
		{"zero efficiency skipped", 500, 0, []int64{0, 300}, 300, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eligible := make([]store.EligibleChannel, 0, len(tc.capacities))
			for _, views := range tc.capacities {
				eligible = append(eligible, channel(views))
			}
			picked := pick(eligible, tc.maxView-tc.confirmed)
			var total int64
			for _, ch := range picked {
				total += ch.ViewEfficiency
			}
			if total != tc.wantTotal {
				t.Errorf("picked total %d, want %d", total, tc.wantTotal)
			}
			if len(picked) != tc.wantPicked {
				t.Errorf("picked %d channels, want %d", len(picked), tc.wantPicked)
			}
			if total > tc.maxView-tc.confirmed {
				t.Errorf("picked total %d exceeds remaining %d", total, tc.maxView-tc.confirmed)
			}
		})
	}
}

func TestAllocator_GroupsByAdminSet(t *testing.T) {
	campaign := store.Campaign{ID: uuid.New(), MaxView: 10000}
	chA := channel(600)
	chB := channel(400)
	chC := channel(500)
	adminX := store.BotUser{ID: uuid.New(), TelegramID: 1}
	adminY := store.BotUser{ID: uuid.New(), TelegramID: 2}

	fs := &fakeStore{
		campaigns:      []store.Campaign{campaign},
		confirmedViews: map[uuid.UUID]int64{},
		eligible:       map[uuid.UUID][]store.EligibleChannel{campaign.ID: {chA, chB, chC}},
		admins: map[uuid.UUID][]store.BotUser{
			chA.ID: {adminX},
			chB.ID: {adminX},
			chC.ID: {adminX, adminY},
		},
	}
	deliverer := &fakeDeliverer{}
	alloc := New(fs, newMemorySessions(), deliverer, observability.NewLogger())

	if err := alloc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(fs.offers) != 2 {
		t.Fatalf("expected 2 offers (one per admin set), got %d", len(fs.offers))
	}
	for _, offer := range fs.offers {
		switch len(offer.ChannelIDs) {
		case 2: // {A, B} share admin X
			if len(offer.UserIDs) != 1 {
				t.Errorf("single-admin group should have 1 recipient, got %d", len(offer.UserIDs))
			}
		case 1: // {C} is shared by X and Y
			if len(offer.UserIDs) != 2 {
				t.Errorf("shared channel's offer should go to both admins, got %d", len(offer.UserIDs))
			}
		default:
			t.Errorf("unexpected offer shape: %+v", offer)
		}
	}
}

func TestAllocator_SoftHeldViewsCountAgainstBudget(t *testing.T) {
	campaign := store.Campaign{ID: uuid.New(), MaxView: 1000}
	chA := channel(600)
	admin := store.BotUser{ID: uuid.New(), TelegramID: 1}

	fs := &fakeStore{
		campaigns:      []store.Campaign{campaign},
		confirmedViews: map[uuid.UUID]int64{},
		eligible:       map[uuid.UUID][]store.EligibleChannel{campaign.ID: {chA}},
		admins:         map[uuid.UUID][]store.BotUser{chA.ID: {admin}},
	}
	sessions := newMemorySessions()
	// another admin holds 500 views in an undecided working set
	offerID := uuid.New()
	sess := session.Session{
		TelegramID: 99,
		State:      session.StateSelectingChannels,
		OfferID:    &offerID,
		CampaignID: &campaign.ID,
		Selections: []session.Selection{{ChannelID: uuid.New(), Tariff: 500, ViewEfficiency: 500}},
	}
	if err := sessions.Save(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	deliverer := &fakeDeliverer{}
	alloc := New(fs, sessions, deliverer, observability.NewLogger())
	if err := alloc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	// 1000 - 500 held leaves 500, channel A needs 600
	if len(fs.offers) != 0 {
		t.Errorf("expected no offer while views are soft-held, got %d", len(fs.offers))
	}
}

func TestAllocator_SkipsFullCampaigns(t *testing.T) {
	campaign := store.Campaign{ID: uuid.New(), MaxView: 1000}
	fs := &fakeStore{
		campaigns:      []store.Campaign{campaign},
		confirmedViews: map[uuid.UUID]int64{campaign.ID: 1000},
		eligible:       map[uuid.UUID][]store.EligibleChannel{campaign.ID: {channel(100)}},
		admins:         map[uuid.UUID][]store.BotUser{},
	}
	deliverer := &fakeDeliverer{}
	alloc := New(fs, newMemorySessions(), deliverer, observability.NewLogger())

	if err := alloc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(fs.offers) != 0 {
		t.Errorf("expected no offers for a full campaign, got %d", len(fs.offers))
	}
}
