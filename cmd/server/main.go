package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bulkmail/bulkmail/internal/campaign"
	"github.com/bulkmail/bulkmail/internal/config"
	"github.com/bulkmail/bulkmail/internal/database"
	"github.com/bulkmail/bulkmail/internal/email"
	"github.com/bulkmail/bulkmail/internal/handler"
	"github.com/bulkmail/bulkmail/internal/logger"
	"github.com/bulkmail/bulkmail/internal/middleware"
	"github.com/bulkmail/bulkmail/internal/realtime"
	"github.com/bulkmail/bulkmail/internal/recipient"
	"github.com/bulkmail/bulkmail/internal/repository"
	"github.com/bulkmail/bulkmail/internal/router"
	"github.com/bulkmail/bulkmail/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", handler.Version).Msg("starting bulkmail server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db      *database.Postgres
		rdb     *database.Redis
		history service.RunHistory
	)

	// PostgreSQL backs the optional run history
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("connected to PostgreSQL")

		if cfg.Database.AutoMigrate {
			if err := database.MigrateUp(db); err != nil {
				log.Fatal().Err(err).Msg("failed to apply migrations")
			}
		}
		if cfg.History.Enabled {
			history = repository.NewRunRepository(db)
		}
	}

	hub := realtime.NewHub(log)
	go hub.Run(ctx)
	publishers := []service.Publisher{hub}

	// Redis mirrors state for other processes and shares rate limit counters
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("connected to Redis")
		publishers = append(publishers, repository.NewStatusRepository(rdb, cfg.Redis.StatusTTL))
	}

	sender, err := email.NewSender(ctx, cfg.Email, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email provider")
	}
	log.Info().Str("provider", cfg.Email.Provider).Msg("email provider initialized")

	source, err := recipient.NewSource(ctx, cfg.Recipients)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize recipient source")
	}

	policy, err := campaign.ParsePolicy(cfg.Send.FailurePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid failure policy")
	}

	svc := service.NewBulkMailService(service.Options{
		Source:              source,
		Runner:              campaign.NewRunner(sender, cfg.Send.Interval, policy, cfg.Send.Timeout, log),
		Renderer:            email.NewRenderer(cfg.Email.BodyFormat),
		FromName:            cfg.Email.FromName,
		Subject:             cfg.Email.Subject,
		Dedupe:              cfg.Recipients.Dedupe,
		AutoRefreshInterval: cfg.Recipients.AutoRefreshInterval,
		History:             history,
		Publishers:          publishers,
	}, log)

	if cfg.Recipients.LoadOnStart {
		if err := svc.Refresh(ctx); err != nil {
			log.Warn().Err(err).Str("source", source.Name()).Msg("initial recipient load failed")
		}
	}

	h := handler.New(db, rdb, log, cfg, svc)
	mw := middleware.New(rdb, log, cfg)
	r := router.New(h, mw, hub, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// stop the send loop first so the last attempt is recorded before exit
	if err := svc.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("send run did not stop cleanly")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
