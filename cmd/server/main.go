// Command server runs the citizen alert relay API: the HTTP surface, the
// SQLite store, and the background outbox worker that retries failed
// inter-service pushes.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/config"
	"github.com/iburossy/bolle-backend/internal/domain"
	httpapi "github.com/iburossy/bolle-backend/internal/http"
	"github.com/iburossy/bolle-backend/internal/observability"
	"github.com/iburossy/bolle-backend/internal/relay"
	"github.com/iburossy/bolle-backend/internal/repo"
	"github.com/iburossy/bolle-backend/internal/sysutil"
	"github.com/iburossy/bolle-backend/internal/worker"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// outboxStore adapts the repo package to the worker's store contract.
type outboxStore struct{}

// DueOutbox proxies repo.DueOutbox.
func (outboxStore) DueOutbox(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	return repo.DueOutbox(ctx, db, now, limit)
}

// MarkOutboxDelivered proxies repo.MarkOutboxDelivered.
func (outboxStore) MarkOutboxDelivered(ctx context.Context, db *gorm.DB, id string, attempts int) error {
	return repo.MarkOutboxDelivered(ctx, db, id, attempts)
}

// RescheduleOutbox proxies repo.RescheduleOutbox.
func (outboxStore) RescheduleOutbox(ctx context.Context, db *gorm.DB, id string, attempts int, nextAt time.Time, lastErr string) error {
	return repo.RescheduleOutbox(ctx, db, id, attempts, nextAt, lastErr)
}

// MarkOutboxFailed proxies repo.MarkOutboxFailed.
func (outboxStore) MarkOutboxFailed(ctx context.Context, db *gorm.DB, id string, attempts int, lastErr string) error {
	return repo.MarkOutboxFailed(ctx, db, id, attempts, lastErr)
}

// GetService proxies repo.GetService.
func (outboxStore) GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error) {
	return repo.GetService(ctx, db, id)
}

// SetRelayReference proxies repo.SetRelayReference.
func (outboxStore) SetRelayReference(ctx context.Context, db *gorm.DB, alertID, reference string) error {
	return repo.SetRelayReference(ctx, db, alertID, reference)
}

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Error().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	// Background delivery of relay messages that failed on the request path.
	outbox := &worker.Outbox{
		DB:          db,
		Store:       outboxStore{},
		Relay:       relay.New(cfg.Relay.ServiceKey, cfg.Relay.ServiceID, cfg.Relay.Timeout, log.Logger),
		Interval:    cfg.Relay.OutboxTick,
		BaseBackoff: cfg.Relay.BaseBackoff,
		MaxAttempts: cfg.Relay.MaxAttempts,
		Log:         log.Logger,
	}
	go outbox.Run(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	log.Info().Msg("server stopped")
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
