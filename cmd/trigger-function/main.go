// Command trigger-function serves the trigger endpoint through the Functions
// Framework, for deployments where each invocation is one HTTP request.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	httpadapter "github.com/couchcryptid/weather-ingest-service/internal/adapter/http"
	"github.com/couchcryptid/weather-ingest-service/internal/app"
	"github.com/couchcryptid/weather-ingest-service/internal/config"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handler := httpadapter.TriggerHandler(a.Dispatcher, "function", logger, metrics)
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/", handler); err != nil {
		logger.Error("register function", "error", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		logger.Error("function server error", "error", err)
		os.Exit(1)
	}
}
