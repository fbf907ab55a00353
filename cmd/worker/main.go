package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"mystore/internal/engine/access"
	"mystore/internal/engine/accounts"
	"mystore/internal/engine/health"
	"mystore/internal/engine/invitations"
	"mystore/internal/engine/mail"
	"mystore/internal/pkg/logger"
	"mystore/internal/platform/audit"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/cache"
	"mystore/internal/platform/config"
	"mystore/internal/platform/database"
	"mystore/internal/platform/queue"
	"mystore/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	concurrency := flag.Int("concurrency", 10, "Queue worker concurrency")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)
	log.Info().Msg("starting mystore workers")

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	queueClient := queue.NewClient(rdb)
	defer queueClient.Close()

	recorder := audit.NewLogger(db)
	accountSvc := accounts.NewService(db, auth.NewTokenService(cfg.JWT, cfg.App.Name),
		access.NewDefaultResolver(cfg.Roles.RoleMap), nil, recorder, accounts.Config{
			SessionLifetime: cfg.Session.Lifetime,
		})
	inviteSvc := invitations.NewService(db, recorder, invitations.Config{
		TTLHours:      cfg.MyStore.Invitations.ExpiresHours,
		SystemActorID: cfg.MyStore.SystemActorID,
	})

	jobs := workers.NewJobs(inviteSvc, accountSvc, health.NewRecorder(cache.NewRedisStore(rdb)), queueClient, workers.Schedule{
		InvitationSweep: cfg.MyStore.Invitations.SweepSchedule,
		SessionPrune:    cfg.Session.PruneSchedule,
		BatchSize:       cfg.MyStore.Invitations.SweepBatchSize,
	})

	var sender mail.Sender = mail.LogSender{}
	smtpSender := mail.NewSMTPSender(cfg.MyStore.Mail)
	if err := smtpSender.Validate(); err == nil {
		sender = smtpSender
	} else {
		log.Warn().Err(err).Msg("smtp not configured, queued mail is logged only")
	}

	scheduler := cron.New(cron.WithLocation(time.UTC))
	if err := jobs.Schedule(scheduler); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule jobs")
	}
	scheduler.Start()

	mux := asynq.NewServeMux()
	jobs.Register(mux, sender)

	srv := queue.NewServer(rdb, *concurrency, map[string]int{
		cfg.MyStore.Mail.Queue: 6,
		queue.DefaultQueue:     3,
	})
	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("failed to start queue worker")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down workers")
	<-scheduler.Stop().Done()
	srv.Shutdown()
}
