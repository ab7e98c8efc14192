package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
)

// Reconciler removes duplicate rows left by overlapping runs.
type Reconciler struct {
	warehouse domain.Warehouse
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func NewReconciler(w domain.Warehouse, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{warehouse: w, logger: logger, metrics: metrics}
}

// Run keeps one row per natural key.
func (r *Reconciler) Run(ctx context.Context) domain.StageReport {
	start := time.Now()
	report := domain.StageReport{Stage: domain.StageReconcile}

	removed, err := r.warehouse.Reconcile(ctx)
	if err != nil {
		r.logger.Error("reconcile warehouse failed", "error", err)
		report.Err = domain.Transient("reconcile", err)
	} else {
		r.metrics.RowsReconciled.Add(float64(removed))
		r.logger.Info("warehouse reconciled", "rows_removed", removed)
		report.RowsReconciled = removed
	}

	report.Duration = time.Since(start)
	return report
}

// Provisioner creates the warehouse dataset and table when missing.
type Provisioner struct {
	warehouse domain.Warehouse
	logger    *slog.Logger
}

func NewProvisioner(w domain.Warehouse, logger *slog.Logger) *Provisioner {
	return &Provisioner{warehouse: w, logger: logger}
}

func (p *Provisioner) Run(ctx context.Context) domain.StageReport {
	start := time.Now()
	report := domain.StageReport{Stage: domain.StageProvision}

	if err := p.warehouse.EnsureTable(ctx); err != nil {
		p.logger.Error("provision warehouse table failed", "error", err)
		report.Err = err
	} else {
		p.logger.Info("warehouse table ready")
	}

	report.Duration = time.Since(start)
	return report
}
