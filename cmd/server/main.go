package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"mystore/internal/api"
	"mystore/internal/api/handlers"
	"mystore/internal/api/middleware"
	"mystore/internal/engine/access"
	"mystore/internal/engine/accounts"
	"mystore/internal/engine/health"
	"mystore/internal/engine/invitations"
	"mystore/internal/engine/mail"
	"mystore/internal/engine/unsubscribe"
	"mystore/internal/pkg/logger"
	"mystore/internal/platform/audit"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/cache"
	"mystore/internal/platform/config"
	"mystore/internal/platform/database"
	"mystore/internal/platform/queue"
	"mystore/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	if err := cfg.RequireServerSecrets(); err != nil {
		log.Fatal().Err(err).Msg("missing server secrets")
	}

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

	store := cache.NewRedisStore(rdb)
	queueClient := queue.NewClient(rdb)
	defer queueClient.Close()

	// Engine
	recorder := audit.NewLogger(db)
	tokenSvc := auth.NewTokenService(cfg.JWT, cfg.App.Name)
	gate := access.NewGate(access.NewDefaultResolver(cfg.Roles.RoleMap))
	signer := unsubscribe.NewSigner(cfg.MyStore.Unsubscribe.SigningKey, cfg.App.URL, cfg.MyStore.Unsubscribe.LinkTTL)
	beats := health.NewRecorder(store)

	var sender mail.Sender = mail.LogSender{}
	smtpSender := mail.NewSMTPSender(cfg.MyStore.Mail)
	if err := smtpSender.Validate(); err == nil {
		sender = smtpSender
	} else {
		log.Warn().Err(err).Msg("smtp not configured, direct mail is logged only")
	}

	dispatcher := mail.NewDispatcher(mail.DispatcherConfig{
		Mode:           cfg.MyStore.Mail.Dispatch,
		TestingProfile: cfg.App.TestingProfile(),
		Queue:          cfg.MyStore.Mail.Queue,
	}, sender, queueClient, signer)
	log.Info().Str("mode", dispatcher.Mode()).Msg("mail dispatcher ready")

	accountSvc := accounts.NewService(db, tokenSvc, gate.Resolver(), dispatcher, recorder, accounts.Config{
		AppURL:          cfg.App.URL,
		SessionLifetime: cfg.Session.Lifetime,
		ResetTTL:        cfg.MyStore.Passwords.ResetTTL,
	})
	inviteSvc := invitations.NewService(db, recorder, invitations.Config{
		TTLHours:       cfg.MyStore.Invitations.ExpiresHours,
		SystemActorID:  cfg.MyStore.SystemActorID,
		CountSuspended: cfg.MyStore.Seats.CountSuspended,
	})
	subscriptions := unsubscribe.NewService(db)

	deps := &api.Dependencies{
		AuthHandler:        handlers.NewAuthHandler(accountSvc),
		AccountHandler:     handlers.NewAccountHandler(accountSvc),
		UserHandler:        handlers.NewUserHandler(accountSvc, inviteSvc, gate.Resolver()),
		InvitationHandler:  handlers.NewInvitationHandler(inviteSvc, subscriptions, dispatcher, gate.Resolver(), cfg.App.URL),
		UnsubscribeHandler: handlers.NewUnsubscribeHandler(signer, subscriptions),
		HealthHandler:      handlers.NewHealthHandler(db, beats, cfg.App),
		AuthMiddleware:     middleware.NewAuthMiddleware(tokenSvc, accountSvc),
		TenantMiddleware:   middleware.NewTenantMiddleware(repositories.NewTenantRepository(db)),
		RateLimiter:        middleware.NewRateLimiter(store),
		Gate:               gate,
		CORS:               cfg.CORS,
		RateLimit:          cfg.RateLimit,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.App.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
