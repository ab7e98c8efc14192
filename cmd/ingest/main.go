package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/weather-ingest-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-ingest-service/internal/adapter/kafka"
	"github.com/couchcryptid/weather-ingest-service/internal/app"
	"github.com/couchcryptid/weather-ingest-service/internal/config"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"github.com/couchcryptid/weather-ingest-service/internal/trigger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.Dispatcher, cfg.StageTimeout, logger, metrics)

	// With Kafka configured, schedules publish to the trigger topic so any
	// replica can pick the run up; otherwise they dispatch in-process.
	var emitter trigger.Emitter = trigger.DispatchEmitter{Dispatcher: a.Dispatcher}
	var (
		consumer  *kafkaadapter.Consumer
		publisher *kafkaadapter.Publisher
	)
	if cfg.KafkaEnabled() {
		consumer = kafkaadapter.NewConsumer(cfg, a.Dispatcher, logger, metrics)
		publisher = kafkaadapter.NewPublisher(cfg, "cron", logger)
		emitter = publisher
		logger.Info("kafka triggers enabled", "topic", cfg.KafkaTriggerTopic, "group", cfg.KafkaGroupID)
	}

	sched := trigger.NewScheduler(emitter, logger, metrics)
	for stage, spec := range map[domain.Stage]string{
		domain.StageFetch:     cfg.FetchSchedule,
		domain.StageLoad:      cfg.LoadSchedule,
		domain.StageReconcile: cfg.ReconcileSchedule,
	} {
		if err := sched.Add(stage, spec); err != nil {
			logger.Error("invalid schedule", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if consumer != nil {
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("trigger consumer error", "error", err)
			}
		}()
	}

	sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled runs still in progress at shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("kafka consumer close error", "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := a.Close(); err != nil {
		logger.Error("backend close error", "error", err)
	}

	logger.Info("shutdown complete")
}
