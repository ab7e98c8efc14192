package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"github.com/google/uuid"
)

// LoadsPrefix holds NDJSON files staged for bulk load jobs.
const LoadsPrefix = "loads/"

// DefaultBatchSize caps the rows written by one bulk load job.
const DefaultBatchSize = 500

// Committer applies a Decision: writes new rows and moves markers.
type Committer struct {
	warehouse domain.Warehouse
	store     domain.BlobStore
	marker    domain.Marker
	bulk      bool
	batchSize int
	newID     func() string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// WithBulkLoad writes new rows through warehouse load jobs instead of
// streaming inserts. New records are then collected in a Batch and written
// with one job per Flush.
func WithBulkLoad() CommitterOption {
	return func(c *Committer) { c.bulk = true }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) CommitterOption {
	return func(c *Committer) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithIDGenerator overrides the row identifier source.
func WithIDGenerator(fn func() string) CommitterOption {
	return func(c *Committer) { c.newID = fn }
}

// NewCommitter creates a Committer. Rows get random UUID identifiers.
func NewCommitter(w domain.Warehouse, store domain.BlobStore, m domain.Marker, logger *slog.Logger, metrics *observability.Metrics, opts ...CommitterOption) *Committer {
	c := &Committer{
		warehouse: w,
		store:     store,
		marker:    m,
		batchSize: DefaultBatchSize,
		newID:     uuid.NewString,
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bulk reports whether new records go through batched load jobs.
func (c *Committer) Bulk() bool { return c.bulk }

// BatchSize is the number of new rows that fills a Batch.
func (c *Committer) BatchSize() int { return c.batchSize }

// Commit applies d. Malformed decisions return their parse error and touch
// nothing. A failed write leaves the marker unprocessed. A failed mark after a
// successful write is also returned; the next run sees the row and marks the
// blob duplicate.
func (c *Committer) Commit(ctx context.Context, d Decision) error {
	ref := d.Record.Blob
	switch d.Class {
	case domain.ClassMalformed:
		return d.Err

	case domain.ClassDuplicate:
		return c.mark(ctx, ref, domain.MarkerDuplicate)

	case domain.ClassNew:
		row := domain.NewWeatherRow(d.Record, c.newID(), domain.Now())
		if err := c.write(ctx, []domain.WeatherRow{row}); err != nil {
			return domain.Transient("write row "+d.Record.Key.String(), err)
		}
		c.metrics.RowsWritten.Inc()
		return c.mark(ctx, ref, domain.MarkerProcessed)

	default:
		return fmt.Errorf("commit %s: unknown classification %q", ref.Name, d.Class)
	}
}

// Batch collects new records of one entity for a single load job. A record
// whose natural key is already queued is held as a duplicate and only marked
// once the queued row has been written.
type Batch struct {
	news []Decision
	dups []Decision
	keys map[domain.NaturalKey]struct{}
}

// NewBatch returns an empty Batch.
func NewBatch() *Batch {
	return &Batch{keys: make(map[domain.NaturalKey]struct{})}
}

// Add queues a ClassNew decision and returns it as queued, reclassified as
// duplicate when its key is already in the batch.
func (b *Batch) Add(d Decision) Decision {
	if _, ok := b.keys[d.Record.Key]; ok {
		d.Class = domain.ClassDuplicate
		b.dups = append(b.dups, d)
		return d
	}
	b.keys[d.Record.Key] = struct{}{}
	b.news = append(b.news, d)
	return d
}

// Len returns the number of rows queued for writing.
func (b *Batch) Len() int { return len(b.news) }

func (b *Batch) reset() {
	b.news, b.dups = nil, nil
	clear(b.keys)
}

// Outcome is the result of one batched record.
type Outcome struct {
	Decision Decision
	Err      error
}

// Flush writes every queued row in one load job, then moves the markers of
// the written records and their in-batch duplicates. When the job fails no
// marker moves and every record reports the transient error. The batch is
// empty afterwards.
func (c *Committer) Flush(ctx context.Context, b *Batch) []Outcome {
	if b.Len() == 0 {
		return nil
	}
	defer b.reset()

	now := domain.Now()
	rows := make([]domain.WeatherRow, len(b.news))
	for i, d := range b.news {
		rows[i] = domain.NewWeatherRow(d.Record, c.newID(), now)
	}

	out := make([]Outcome, 0, len(b.news)+len(b.dups))
	if err := c.write(ctx, rows); err != nil {
		werr := domain.Transient(fmt.Sprintf("load %d rows", len(rows)), err)
		for _, d := range append(b.news, b.dups...) {
			out = append(out, Outcome{Decision: d, Err: werr})
		}
		return out
	}
	c.metrics.RowsWritten.Add(float64(len(rows)))

	for _, d := range b.news {
		out = append(out, Outcome{Decision: d, Err: c.mark(ctx, d.Record.Blob, domain.MarkerProcessed)})
	}
	for _, d := range b.dups {
		out = append(out, Outcome{Decision: d, Err: c.mark(ctx, d.Record.Blob, domain.MarkerDuplicate)})
	}
	return out
}

func (c *Committer) mark(ctx context.Context, ref domain.BlobRef, state domain.MarkerState) error {
	if err := c.marker.Mark(ctx, ref, state); err != nil {
		return err
	}
	c.metrics.MarkerTransitions.WithLabelValues(string(state)).Inc()
	return nil
}

func (c *Committer) write(ctx context.Context, rows []domain.WeatherRow) error {
	if !c.bulk {
		return c.warehouse.InsertRows(ctx, rows)
	}

	var data []byte
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row %s: %w", row.RowID, err)
		}
		data = append(data, line...)
		data = append(data, '\n')
	}

	name := LoadsPrefix + rows[0].RowID + ".json"
	if err := c.store.Upload(ctx, name, data); err != nil {
		return fmt.Errorf("stage load file: %w", err)
	}
	defer func() {
		if err := c.store.Delete(context.WithoutCancel(ctx), name); err != nil {
			c.logger.Warn("delete load file failed", "blob", name, "error", err)
		}
	}()

	return c.warehouse.BulkLoad(ctx, domain.LoadSource{URI: c.store.URI(name), Data: data}, domain.DefaultLoadConfig)
}
