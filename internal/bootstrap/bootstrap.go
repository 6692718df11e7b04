package bootstrap

import (
	"context"
	"fmt"

	"adtel/internal/bot"
	"adtel/internal/clients/mtproto"
	"adtel/internal/clients/partner"
	redisclient "adtel/internal/clients/redis"
	"adtel/internal/clients/shortlink"
	"adtel/internal/clients/telegram"
	"adtel/internal/config"
	"adtel/internal/jobs"
	"adtel/internal/observability"
	"adtel/internal/push"
	"adtel/internal/render"
	"adtel/internal/session"
	"adtel/internal/store"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Clients
	Redis      *redisclient.Client
	Telegram   *telegram.Bot
	ViewReader *mtproto.ViewReader
	ShortLink  *shortlink.Client
	Partner    *partner.Client
	Jobs       *jobs.Client

	// Domain
	Sessions   session.Store
	Renderer   *render.Renderer
	Offers     *push.Processor
	Dispatcher *bot.Dispatcher
}

// Initialize sets up all application dependencies for the webhook server.
// Heavy work (delivery fan-out, shot intake, keyboard reconciliation) is
// deferred to the job queue; the worker binary executes it.
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	deps.Redis, err = redisclient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	deps.Sessions = session.NewRedisStore(deps.Redis, logger)

	deps.Telegram, err = telegram.NewBot(cfg.Telegram.BotToken, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	deps.ViewReader = mtproto.NewViewReader(cfg.Telegram, logger)
	deps.ShortLink = shortlink.NewClient(cfg.ShortLink, logger)
	deps.Partner = partner.NewClient(cfg.Partner, logger)
	deps.Jobs = jobs.NewClient(cfg.Redis, logger)

	deps.Renderer = render.New(&deps.Store, deps.Telegram, deps.ShortLink, logger)

	deps.Offers = push.NewProcessor(&deps.Store, deps.Sessions, deps.Telegram, deps.Renderer, logger)
	deps.Offers.SetRefreshQueue(deps.Jobs)

	deps.Dispatcher = bot.NewDispatcher(&deps.Store, deps.Sessions, deps.Telegram,
		deps.Offers, deps.Partner, deps.ViewReader, logger)
	deps.Dispatcher.SetShotQueue(deps.Jobs)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.Jobs != nil {
		d.Jobs.Close()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
}
