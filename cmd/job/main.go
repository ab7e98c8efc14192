// Command job runs a single stage and exits non-zero when it fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/weather-ingest-service/internal/app"
	"github.com/couchcryptid/weather-ingest-service/internal/config"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
)

func main() {
	stage := flag.String("stage", "", "stage to run: get-data, load-data, reconcile, or provision")
	flag.Parse()

	if err := run(*stage); err != nil {
		slog.Error("job failed", "stage", *stage, "error", err)
		os.Exit(1)
	}
}

func run(name string) error {
	stage, err := domain.ParseStage(name)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.Dispatcher.Run(ctx, stage)
	if report.Failed() {
		if report.Err != nil {
			return report.Err
		}
		return fmt.Errorf("%d record failures", report.Totals().Failed)
	}
	return nil
}
