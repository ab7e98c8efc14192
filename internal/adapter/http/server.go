package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"github.com/couchcryptid/weather-ingest-service/internal/trigger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxTriggerBody bounds trigger request bodies.
const maxTriggerBody = 64 << 10

// Dispatcher runs the stage named by a trigger command.
type Dispatcher interface {
	sharedobs.ReadinessChecker
	Dispatch(ctx context.Context, cmd string) (domain.StageReport, error)
}

// Server exposes health, readiness, metrics, and trigger HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// POST /trigger routes. The write timeout leaves room for a full stage run.
func NewServer(addr string, d Dispatcher, stageTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: stageTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(d))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("POST /trigger", TriggerHandler(d, "http", logger, metrics))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// TriggerResponse is the coarse outcome returned to the invoker.
type TriggerResponse struct {
	Status         string `json:"status"`
	Stage          string `json:"stage,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
	Entities       int    `json:"entities,omitempty"`
	Fetched        int    `json:"fetched,omitempty"`
	Processed      int    `json:"processed,omitempty"`
	Duplicates     int    `json:"duplicates,omitempty"`
	Malformed      int    `json:"malformed,omitempty"`
	Failed         int    `json:"failed,omitempty"`
	RowsReconciled int64  `json:"rows_reconciled,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TriggerHandler decodes a command from the request body, runs it, and
// answers 200 on success, 400 for an unusable command, and 500 when the
// stage reports failures. source labels the trigger metric.
func TriggerHandler(d Dispatcher, source string, logger *slog.Logger, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody))
		if err != nil {
			metrics.Triggers.WithLabelValues(source, "rejected").Inc()
			sharedobs.WriteJSON(w, http.StatusBadRequest, TriggerResponse{Status: "failed", Error: "read body: " + err.Error()})
			return
		}

		cmd, err := trigger.DecodeCommand(body)
		if err != nil {
			metrics.Triggers.WithLabelValues(source, "rejected").Inc()
			logger.Warn("invalid trigger request", "source", source, "error", err)
			sharedobs.WriteJSON(w, http.StatusBadRequest, TriggerResponse{Status: "failed", Error: err.Error()})
			return
		}

		report, err := d.Dispatch(r.Context(), cmd)
		if err != nil {
			metrics.Triggers.WithLabelValues(source, "rejected").Inc()
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrUnknownStage) {
				status = http.StatusBadRequest
			}
			sharedobs.WriteJSON(w, status, TriggerResponse{Status: "failed", Error: err.Error()})
			return
		}
		metrics.Triggers.WithLabelValues(source, "accepted").Inc()

		resp := newTriggerResponse(report)
		status := http.StatusOK
		if report.Failed() {
			status = http.StatusInternalServerError
		}
		sharedobs.WriteJSON(w, status, resp)
	}
}

func newTriggerResponse(report domain.StageReport) TriggerResponse {
	t := report.Totals()
	resp := TriggerResponse{
		Status:         "ok",
		Stage:          string(report.Stage),
		DurationMS:     report.Duration.Milliseconds(),
		Entities:       len(report.Entities),
		Fetched:        t.Fetched,
		Processed:      t.Processed,
		Duplicates:     t.Duplicates,
		Malformed:      t.Malformed,
		Failed:         t.Failed,
		RowsReconciled: report.RowsReconciled,
	}
	if report.Failed() {
		resp.Status = "failed"
	}
	if report.Err != nil {
		resp.Error = report.Err.Error()
	}
	return resp
}
