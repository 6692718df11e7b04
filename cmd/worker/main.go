package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adtel/internal/allocation"
	"adtel/internal/bot"
	"adtel/internal/clients/mtproto"
	"adtel/internal/clients/partner"
	redisclient "adtel/internal/clients/redis"
	"adtel/internal/clients/shortlink"
	"adtel/internal/clients/telegram"
	"adtel/internal/collector"
	"adtel/internal/config"
	"adtel/internal/jobs"
	"adtel/internal/jobs/scheduler"
	schedulerjobs "adtel/internal/jobs/scheduler/jobs"
	"adtel/internal/jobs/workers"
	"adtel/internal/observability"
	"adtel/internal/payout"
	"adtel/internal/push"
	"adtel/internal/render"
	"adtel/internal/session"
	"adtel/internal/store"

	"github.com/hibiken/asynq"
)

func main() {
	logger := observability.NewLogger()
	ctx := context.Background()

	logger.Info(ctx, "Starting background worker server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dataStore, err := store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis, logger)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	sessions := session.NewRedisStore(redisClient, logger)

	bots, err := telegram.NewBot(cfg.Telegram.BotToken, logger)
	if err != nil {
		log.Fatalf("Failed to initialize telegram bot: %v", err)
	}

	viewReader := mtproto.NewViewReader(cfg.Telegram, logger)
	linkClient := shortlink.NewClient(cfg.ShortLink, logger)
	partnerClient := partner.NewClient(cfg.Partner, logger)

	jobClient := jobs.NewClient(cfg.Redis, logger)
	defer jobClient.Close()

	renderer := render.New(&dataStore, bots, linkClient, logger)
	offers := push.NewProcessor(&dataStore, sessions, bots, renderer, logger)
	// The sweep enqueues deliveries; the push worker below executes them.
	allocator := allocation.New(&dataStore, sessions, jobClient, logger)
	viewCollector := collector.New(&dataStore, viewReader, linkClient, logger)
	payouts := payout.New(&dataStore, bots, logger)
	dispatcher := bot.NewDispatcher(&dataStore, sessions, bots, offers, partnerClient, viewReader, logger)

	pushWorker := workers.NewPushWorker(offers, logger)
	shotWorker := workers.NewShotWorker(dispatcher, logger)
	mediaWorker := workers.NewMediaWorker(&dataStore, bots, cfg.Telegram.ViewChannelID, logger)
	payoutWorker := workers.NewPayoutWorker(payouts, logger)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Jobs.Concurrency,
			Queues: map[string]int{
				jobs.QueueCritical: 6, // offer delivery and shot processing first
				jobs.QueueDefault:  3,
				jobs.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error(ctx, fmt.Sprintf("task %s failed: %v", task.Type(), err), err)
			}),
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Logger:         &asynqLogger{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypePushDeliver, pushWorker.ProcessDeliverTask)
	mux.HandleFunc(jobs.TypePushKeyboards, pushWorker.ProcessKeyboardsTask)
	mux.HandleFunc(jobs.TypeShotProcess, shotWorker.ProcessShotTask)
	mux.HandleFunc(jobs.TypeMediaWarm, mediaWorker.ProcessMediaWarmTask)
	mux.HandleFunc(jobs.TypePayoutReceipts, payoutWorker.ProcessReceiptsTask)
	mux.HandleFunc(jobs.TypePayoutPaidNotice, payoutWorker.ProcessPaidNoticeTask)

	sched := scheduler.New(logger)
	sched.Register(schedulerjobs.NewAllocationSweepJob(allocator, logger,
		time.Duration(cfg.Scheduler.AllocationIntervalSec)*time.Second))
	sched.Register(schedulerjobs.NewPushExpiryJob(offers, logger,
		time.Duration(cfg.Scheduler.PushExpiryMinutes)*time.Minute, 0))
	sched.Register(schedulerjobs.NewViewPollJob(viewCollector, logger, 0))
	sched.Register(schedulerjobs.NewShortLinkPollJob(viewCollector, logger, 0))
	sched.Register(schedulerjobs.NewCampaignCloseJob(viewCollector, logger, 0))
	sched.Register(schedulerjobs.NewNoShotJob(viewCollector, logger, 0, 0))
	sched.Register(schedulerjobs.NewBudgetGuardJob(viewCollector, logger, 0))
	sched.Register(schedulerjobs.NewReceiptSweepJob(payouts, logger, 0))
	sched.Register(schedulerjobs.NewPruneInvalidJob(payouts, logger, 0, 0))
	sched.Register(schedulerjobs.NewShotReminderJob(&dataStore, redisClient, bots, logger,
		time.Duration(cfg.Scheduler.ShotReminderLeadHours)*time.Hour,
		cfg.Scheduler.ShotWindowOpenHour, cfg.Scheduler.ShotWindowCloseHour, 0))

	schedCtx, cancelSched := context.WithCancel(ctx)
	go func() {
		if err := sched.Start(schedCtx); err != nil {
			logger.Error(schedCtx, "scheduler stopped", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info(ctx, fmt.Sprintf("Worker server started on Redis: %s", cfg.Redis.Addr))
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-sigChan
	logger.Info(ctx, "Shutting down worker server...")

	cancelSched()
	srv.Shutdown()
	logger.Info(ctx, "Worker server stopped")
}

// asynqLogger adapts observability.Logger to asynq.Logger interface
type asynqLogger struct {
	logger *observability.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(context.Background(), fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(context.Background(), fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(context.Background(), fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(context.Background(), fmt.Sprint(args...), nil)
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(context.Background(), fmt.Sprint(args...), nil)
	os.Exit(1)
}
