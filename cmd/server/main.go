// Package main is the entry point for the time-clock agent backend.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/attendly/go-timeclock-backend/internal/config"
	"github.com/attendly/go-timeclock-backend/internal/events"
	"github.com/attendly/go-timeclock-backend/internal/gateway"
	httpapi "github.com/attendly/go-timeclock-backend/internal/http"
	"github.com/attendly/go-timeclock-backend/internal/observability"
	"github.com/attendly/go-timeclock-backend/internal/repo"
	"github.com/attendly/go-timeclock-backend/internal/services"
	"github.com/attendly/go-timeclock-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("backend", cfg.Store.Backend).Msg("starting time-clock backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, sysutil.FirstNonEmpty(version, "dev"))
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	db, err := repo.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("store migration failed")
	}

	bus := events.NewBus()
	gw := gateway.NewHTTPGateway(cfg.Gateway)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	svcs := httpapi.RegisterRoutes(r, db, bus, gw, cfg)

	// Background loops: retry processor and deletion sweeper stop on signal.
	processor := services.NewProcessor(svcs.Queue, svcs.Threads, gw, cfg.Queue)
	go processor.Run(ctx)

	sweeper := services.NewDeletionSweeper(svcs.Deletions, cfg.Deletion.SweepInterval)
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("api_base", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("stopped")
}
