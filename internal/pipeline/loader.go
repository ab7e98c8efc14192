package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Loader runs the enumerate → classify → commit loop for each entity.
type Loader struct {
	enum        *Enumerator
	decider     *Decider
	committer   *Committer
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewLoader creates a Loader processing up to concurrency entities at once.
// Records inside one entity are always processed sequentially.
func NewLoader(e *Enumerator, d *Decider, c *Committer, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		enum:        e,
		decider:     d,
		committer:   c,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run ingests every unprocessed record of each entity. Failures are isolated
// per record and per entity. When ctx is cancelled no new entity or record is
// started and the reports gathered so far are returned with Err set.
func (l *Loader) Run(ctx context.Context, entities []string) domain.StageReport {
	start := time.Now()
	reports := make([]domain.EntityReport, len(entities))
	started := make([]bool, len(entities))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, entity := range entities {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			reports[i] = l.runEntity(ctx, entity)
			return nil
		})
	}
	_ = g.Wait()

	report := domain.StageReport{Stage: domain.StageLoad, Err: ctx.Err()}
	for i, ok := range started {
		if ok {
			report.Entities = append(report.Entities, reports[i])
		}
	}
	report.Duration = time.Since(start)
	return report
}

func (l *Loader) runEntity(ctx context.Context, entity string) domain.EntityReport {
	rep := domain.EntityReport{Entity: entity}
	logger := l.logger.With("entity", entity)

	var batch *Batch
	if l.committer.Bulk() {
		batch = NewBatch()
	}

	for ref, err := range l.enum.Unprocessed(ctx, entity) {
		if ctx.Err() != nil {
			// Queued records stay unprocessed for the next run.
			rep.Err = ctx.Err()
			return rep
		}
		if err != nil {
			var ee *EnumerationError
			if errors.As(err, &ee) {
				logger.Error("enumerate staged records failed, skipping entity", "error", err)
				l.metrics.EntityErrors.Inc()
				l.flush(ctx, logger, batch, &rep)
				rep.Err = err
				return rep
			}
			logger.Warn("marker lookup failed", "blob", ref.Name, "error", err)
			l.metrics.RecordErrors.WithLabelValues("marker").Inc()
			rep.Failed++
			continue
		}

		rep.Enumerated++
		l.metrics.RecordsEnumerated.Inc()
		l.processRecord(ctx, logger, entity, ref, batch, &rep)
	}
	l.flush(ctx, logger, batch, &rep)

	logger.Info("entity ingested",
		"enumerated", rep.Enumerated,
		"processed", rep.Processed,
		"duplicates", rep.Duplicates,
		"malformed", rep.Malformed,
		"failed", rep.Failed,
	)
	return rep
}

// processRecord handles one blob. Every error stops at this boundary. With a
// batch, new records are queued and counted when the batch is flushed.
func (l *Loader) processRecord(ctx context.Context, logger *slog.Logger, entity string, ref domain.BlobRef, batch *Batch, rep *domain.EntityReport) {
	d, err := l.decider.Classify(ctx, entity, ref)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			logger.Debug("blob vanished before classification", "blob", ref.Name)
			return
		}
		logger.Warn("classify record failed, leaving unprocessed", "blob", ref.Name, "error", err)
		l.metrics.RecordErrors.WithLabelValues("transient").Inc()
		rep.Failed++
		return
	}

	if batch != nil && d.Class == domain.ClassNew {
		queued := batch.Add(d)
		l.metrics.Classifications.WithLabelValues(string(queued.Class)).Inc()
		if batch.Len() >= l.committer.BatchSize() {
			l.flush(ctx, logger, batch, rep)
		}
		return
	}

	l.metrics.Classifications.WithLabelValues(string(d.Class)).Inc()
	l.count(logger, d, l.committer.Commit(ctx, d), rep)
}

func (l *Loader) flush(ctx context.Context, logger *slog.Logger, batch *Batch, rep *domain.EntityReport) {
	if batch == nil || batch.Len() == 0 {
		return
	}
	for _, o := range l.committer.Flush(ctx, batch) {
		l.count(logger, o.Decision, o.Err, rep)
	}
}

// count records the outcome of one committed decision.
func (l *Loader) count(logger *slog.Logger, d Decision, err error, rep *domain.EntityReport) {
	ref := d.Record.Blob
	switch {
	case d.Class == domain.ClassMalformed:
		logger.Warn("malformed record left for manual review", "blob", ref.Name, "error", err)
		l.metrics.RecordErrors.WithLabelValues("malformed").Inc()
		rep.Malformed++
	case err != nil:
		logger.Warn("commit record failed, leaving unprocessed",
			"blob", ref.Name,
			"natural_key", d.Record.Key.String(),
			"classification", d.Class,
			"error", err,
		)
		kind := "transient"
		if errors.Is(err, domain.ErrMarkerConflict) {
			kind = "marker"
		}
		l.metrics.RecordErrors.WithLabelValues(kind).Inc()
		rep.Failed++
	case d.Class == domain.ClassDuplicate:
		logger.Debug("duplicate record marked", "blob", ref.Name, "natural_key", d.Record.Key.String())
		rep.Duplicates++
	default:
		logger.Debug("record ingested", "blob", ref.Name, "natural_key", d.Record.Key.String())
		rep.Processed++
	}
}
