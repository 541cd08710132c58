// Command server runs the chat turn-orchestration service: HTTP intake for
// web and WhatsApp turns, SQLite persistence, the local product index, and
// the model-routing layer, with OpenTelemetry tracing and Prometheus metrics.
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

	"github.com/lumakode/go-chatbot-backend/internal/catalog"
	"github.com/lumakode/go-chatbot-backend/internal/config"
	httpapi "github.com/lumakode/go-chatbot-backend/internal/http"
	"github.com/lumakode/go-chatbot-backend/internal/observability"
	"github.com/lumakode/go-chatbot-backend/internal/repo"
	"github.com/lumakode/go-chatbot-backend/internal/sysutil"
)

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()

	version := sysutil.FirstNonEmpty(os.Getenv("SERVICE_VERSION"), "dev")

	ctx := context.Background()
	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}

	catalogOpts := []catalog.Option{
		catalog.WithMaxResults(cfg.Catalog.MaxResults),
		catalog.WithMinScore(cfg.Catalog.MinScore),
	}
	idx := catalog.NewIndexFromItems(nil, catalogOpts...)
	if cfg.Catalog.DataPath != "" {
		loaded, err := catalog.NewIndexFromFile(cfg.Catalog.DataPath, catalogOpts...)
		if err != nil {
			// The index degrades to empty; recommendations answer without catalog hits.
			logger.Warn().Err(err).Str("path", cfg.Catalog.DataPath).Msg("catalog index unavailable")
		}
		idx = loaded
	}
	logger.Info().Int("items", idx.Len()).Msg("catalog index ready")

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, idx, cfg, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
