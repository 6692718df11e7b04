package bot

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/observability"
	"adtel/internal/push"
	"adtel/internal/session"
	"adtel/internal/store"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	UpsertUser(ctx context.Context, params store.UpsertUserParams) (store.BotUser, error)
	SetUserSticker(ctx context.Context, userID uuid.UUID, fileID string) error

	ListUserChannels(ctx context.Context, userID uuid.UUID) ([]store.Channel, error)
	GetChannelByID(ctx context.Context, id uuid.UUID) (store.Channel, error)
	GetChannelByTelegramID(ctx context.Context, telegramID int64) (store.Channel, error)
	CreateChannel(ctx context.Context, params store.CreateChannelParams) (store.Channel, error)
	AddChannelAdmin(ctx context.Context, channelID, userID uuid.UUID) error
	RemoveChannelAdmin(ctx context.Context, channelID, userID uuid.UUID) error
	CreateBankAccount(ctx context.Context, ownerID uuid.UUID, sheba, title string) (store.BankAccount, error)
	ExchangeBankAccount(ctx context.Context, fromID, toID uuid.UUID) (int64, error)

	ListOpenCampaigns(ctx context.Context) ([]store.Campaign, error)
	GetCampaignByID(ctx context.Context, id uuid.UUID) (store.Campaign, error)

	ListUserAssignments(ctx context.Context, userID uuid.UUID) ([]store.Assignment, error)
	ListPostsByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]store.Post, error)
	GetPostByID(ctx context.Context, id uuid.UUID) (store.Post, error)
	SetPostShot(ctx context.Context, id uuid.UUID, fileID string) error
	UpdatePostViews(ctx context.Context, id uuid.UUID, views int64) error
	AppendPostViewLog(ctx context.Context, postID uuid.UUID, views int64) error
}

// OfferProcessor handles the claim lifecycle of push offers.
type OfferProcessor interface {
	ToggleSelection(ctx context.Context, telegramID int64, offerID, channelID uuid.UUID) (session.Session, telegram.Keyboard, error)
	Confirm(ctx context.Context, offerID uuid.UUID, user store.BotUser) error
	Cancel(ctx context.Context, offerID uuid.UUID, user store.BotUser) error
}

// Partner notifies the partner platform that the publisher roster changed.
type Partner interface {
	TriggerPublisherUpdate(ctx context.Context)
}

// ViewReader reads message view counters from a channel.
type ViewReader interface {
	MessageViews(ctx context.Context, channelUsername string, messageIDs []int) (map[int]int64, error)
}

// ShotEnqueuer defers screenshot intake to the job queue.
type ShotEnqueuer interface {
	EnqueueShot(ctx context.Context, postID uuid.UUID, fileID string) error
}

// Dispatcher routes inbound updates to the conversation handlers.
type Dispatcher struct {
	store    Store
	sessions session.Store
	telegram telegram.Client
	offers   OfferProcessor
	partner  Partner
	views    ViewReader
	shots    ShotEnqueuer
	logger   *observability.Logger

	commands map[string]handlerFunc
	menu     map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, user store.BotUser, sess session.Session, u telegram.Update) error

// NewDispatcher wires the handler tables.
func NewDispatcher(st Store, sessions session.Store, tg telegram.Client, offers OfferProcessor, partner Partner, views ViewReader, logger *observability.Logger) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		sessions: sessions,
		telegram: tg,
		offers:   offers,
		partner:  partner,
		views:    views,
		logger:   logger,
	}
	d.commands = map[string]handlerFunc{
		"/start": d.handleStart,
		"/stop":  d.handleStop,
	}
	d.menu = map[string]handlerFunc{
		menuAddChannel:      d.handleAddChannel,
		menuRemoveChannel:   d.handleRemoveChannel,
		menuMyChannels:      d.handleMyChannels,
		menuActiveCampaigns: d.handleActiveCampaigns,
		menuFinancialReport: d.handleFinancialReport,
		menuSendScreenshot:  d.handleSendScreenshot,
		menuSetSticker:      d.handleSetSticker,
		menuChangeSheba:     d.handleChangeSheba,
	}
	return d
}

// SetShotQueue makes photo intake enqueue screenshot processing instead of
// handling it inline. The webhook process uses this; the worker keeps the
// inline path.
func (d *Dispatcher) SetShotQueue(q ShotEnqueuer) {
	d.shots = q
}

func mainMenu() [][]string {
	return [][]string{
		{menuAddChannel, menuRemoveChannel},
		{menuMyChannels, menuActiveCampaigns},
		{menuFinancialReport, menuSendScreenshot},
		{menuSetSticker, menuChangeSheba},
	}
}

// HandleUpdate classifies one inbound update and runs its handler. Handler
// errors are logged here; the update is always considered consumed.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u telegram.Update) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "telegram_id", Value: u.FromID},
		observability.Field{Key: "update_id", Value: u.UpdateID},
	)

	var username *string
	if u.FromUsername != "" {
		username = &u.FromUsername
	}
	user, err := d.store.UpsertUser(ctx, store.UpsertUserParams{
		TelegramID: u.FromID,
		Username:   username,
		FirstName:  u.FromName,
	})
	if err != nil {
		d.logger.Error(ctx, "failed to upsert update sender", err)
		return
	}

	sess, err := d.sessions.Get(ctx, u.FromID)
	if err != nil {
		d.logger.Error(ctx, "failed to load session", err)
		return
	}
	sess.UserID = user.ID

	handler := d.classify(sess, u)
	if handler == nil {
		return
	}
	if err := handler(ctx, user, sess, u); err != nil {
		d.logger.Error(ctx, "update handler failed", err)
	}
}

func (d *Dispatcher) classify(sess session.Session, u telegram.Update) handlerFunc {
	switch {
	case u.IsCallback():
		return d.classifyCallback(u.CallbackData)
	case strings.HasPrefix(u.Text, "/"):
		if h, ok := d.commands[strings.Fields(u.Text)[0]]; ok {
			return h
		}
		return d.handleFallback
	case d.menu[u.Text] != nil:
		return d.menu[u.Text]
	case u.StickerFileID != "" && sess.State == session.StateGetSticker:
		return d.handleStickerMessage
	case u.PhotoFileID != "" && sess.State == session.StateGetShot:
		return d.handleShotPhoto
	case sess.State == session.StateAddChannel:
		return d.handleChannelTag
	case sess.State == session.StateGetSheba:
		return d.handleSheba
	case sess.State == session.StateExchangeSheba:
		return d.handleNewSheba
	default:
		return d.handleFallback
	}
}

// classifyCallback routes by payload prefix. The confirm and cancel prefixes
// start with the toggle prefix, so they are checked first.
func (d *Dispatcher) classifyCallback(data string) handlerFunc {
	switch {
	case !push.IsOfferCallback(data):
		return d.classifyBotCallback(data)
	default:
		if _, err := push.DecodeConfirm(data); err == nil {
			return d.handleOfferConfirm
		}
		if _, err := push.DecodeCancel(data); err == nil {
			return d.handleOfferCancel
		}
		return d.handleOfferToggle
	}
}

func (d *Dispatcher) classifyBotCallback(data string) handlerFunc {
	switch {
	case strings.HasPrefix(data, prefixCampaign):
		return d.handleCampaignDetail
	case strings.HasPrefix(data, prefixRemove):
		return d.handleRemoveChannelPick
	case strings.HasPrefix(data, prefixSheba):
		return d.handleShebaChannelPick
	case strings.HasPrefix(data, prefixShotClaim):
		return d.handleShotClaimPick
	case strings.HasPrefix(data, prefixShotPost):
		return d.handleShotPostPick
	default:
		return d.handleUnknownCallback
	}
}

func (d *Dispatcher) handleUnknownCallback(ctx context.Context, _ store.BotUser, _ session.Session, u telegram.Update) error {
	return d.telegram.AnswerCallback(ctx, u.CallbackID, "")
}

func (d *Dispatcher) handleFallback(ctx context.Context, _ store.BotUser, _ session.Session, u telegram.Update) error {
	_, err := d.telegram.SendText(ctx, u.ChatID, textUnknown, telegram.SendOptions{ReplyButtons: mainMenu()})
	return err
}
