package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/oceanbio/occurrence-screening/internal/adapter/dataset"
	"github.com/oceanbio/occurrence-screening/internal/adapter/httpapi"
	kafkaadapter "github.com/oceanbio/occurrence-screening/internal/adapter/kafka"
	"github.com/oceanbio/occurrence-screening/internal/adapter/worms"
	"github.com/oceanbio/occurrence-screening/internal/config"
	"github.com/oceanbio/occurrence-screening/internal/domain"
	"github.com/oceanbio/occurrence-screening/internal/observability"
	"github.com/oceanbio/occurrence-screening/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := worms.NewClient(cfg.WormsBaseURL, cfg.WormsTimeout, cfg.WormsBatchSize, metrics, logger)
	var resolver domain.Resolver = worms.NewCachedResolver(client, cfg.WormsCacheSize, metrics)
	logger.Info("worms resolver configured",
		"base_url", cfg.WormsBaseURL,
		"batch_size", cfg.WormsBatchSize,
		"cache_size", cfg.WormsCacheSize,
	)

	store := dataset.NewStore(cfg.DatasetDir, logger)

	// Report sink is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.ReportPublisher
	var writer *kafkaadapter.ReportWriter
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewReportWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka report sink enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka report sink disabled")
	}

	processor := pipeline.New(resolver, store, publisher, logger, metrics, cfg.H3Resolution, cfg.ScoringStrict)

	srv := httpapi.NewServer(cfg, processor, processor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
