// Package trigger turns string commands from any transport into stage runs.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
)

// EntityStage runs once over a list of entities.
type EntityStage interface {
	Run(ctx context.Context, entities []string) domain.StageReport
}

// TableStage runs once against the warehouse table.
type TableStage interface {
	Run(ctx context.Context) domain.StageReport
}

// Pinger checks that a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CitiesFunc returns the entity list for an invocation.
type CitiesFunc func(ctx context.Context) ([]string, error)

// Stages groups the stage implementations.
type Stages struct {
	Fetch     EntityStage
	Load      EntityStage
	Reconcile TableStage
	Provision TableStage
}

// Dispatcher selects and runs the stage named by a command.
type Dispatcher struct {
	stages  Stages
	cities  CitiesFunc
	ready   []Pinger
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a Dispatcher. Each run is bounded by timeout when it
// is positive. ready lists the backends checked by CheckReadiness.
func NewDispatcher(stages Stages, cities CitiesFunc, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics, ready ...Pinger) *Dispatcher {
	return &Dispatcher{
		stages:  stages,
		cities:  cities,
		ready:   ready,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Dispatch parses cmd and runs its stage. An unrecognised command returns
// an error wrapping domain.ErrUnknownStage and runs nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd string) (domain.StageReport, error) {
	stage, err := domain.ParseStage(cmd)
	if err != nil {
		d.logger.Warn("rejected trigger command", "command", cmd, "error", err)
		return domain.StageReport{}, err
	}
	return d.Run(ctx, stage), nil
}

// Run executes one stage and records its outcome.
func (d *Dispatcher) Run(ctx context.Context, stage domain.Stage) domain.StageReport {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	label := string(stage)
	d.metrics.StageRunning.WithLabelValues(label).Inc()
	defer d.metrics.StageRunning.WithLabelValues(label).Dec()

	start := time.Now()
	d.logger.Info("stage started", "stage", stage)

	report := d.run(ctx, stage)
	if report.Duration == 0 {
		report.Duration = time.Since(start)
	}

	result := "ok"
	if report.Failed() {
		result = "failed"
	}
	d.metrics.StageRuns.WithLabelValues(label, result).Inc()
	d.metrics.StageDuration.WithLabelValues(label).Observe(report.Duration.Seconds())

	totals := report.Totals()
	attrs := []any{
		"stage", stage,
		"result", result,
		"duration", report.Duration,
		"entities", len(report.Entities),
		"fetched", totals.Fetched,
		"enumerated", totals.Enumerated,
		"processed", totals.Processed,
		"duplicates", totals.Duplicates,
		"malformed", totals.Malformed,
		"failed", totals.Failed,
		"rows_reconciled", report.RowsReconciled,
	}
	if report.Err != nil {
		attrs = append(attrs, "error", report.Err)
	}
	if report.Failed() {
		d.logger.Warn("stage finished with failures", attrs...)
	} else {
		d.logger.Info("stage finished", attrs...)
	}
	return report
}

func (d *Dispatcher) run(ctx context.Context, stage domain.Stage) domain.StageReport {
	switch stage {
	case domain.StageFetch, domain.StageLoad:
		cities, err := d.cities(ctx)
		if err != nil {
			return domain.StageReport{Stage: stage, Err: fmt.Errorf("read cities: %w", err)}
		}
		if stage == domain.StageFetch {
			return d.stages.Fetch.Run(ctx, cities)
		}
		return d.stages.Load.Run(ctx, cities)
	case domain.StageReconcile:
		return d.stages.Reconcile.Run(ctx)
	case domain.StageProvision:
		return d.stages.Provision.Run(ctx)
	default:
		return domain.StageReport{Stage: stage, Err: fmt.Errorf("%w: %s", domain.ErrUnknownStage, stage)}
	}
}

// CheckReadiness pings every configured backend.
func (d *Dispatcher) CheckReadiness(ctx context.Context) error {
	for _, p := range d.ready {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
