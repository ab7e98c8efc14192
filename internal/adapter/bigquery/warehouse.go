// Package bigquery implements domain.Warehouse on Google BigQuery.
package bigquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	bq "cloud.google.com/go/bigquery"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"google.golang.org/api/googleapi"
)

// Warehouse stores WeatherRows in one BigQuery table.
type Warehouse struct {
	client   *bq.Client
	project  string
	dataset  string
	table    string
	location string
	schema   bq.Schema
}

// New creates a BigQuery client for project. location is used when the
// dataset has to be created.
func New(ctx context.Context, project, dataset, table, location string) (*Warehouse, error) {
	client, err := bq.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	schema, err := RowSchema()
	if err != nil {
		client.Close()
		return nil, err
	}
	return &Warehouse{
		client:   client,
		project:  project,
		dataset:  dataset,
		table:    table,
		location: location,
		schema:   schema,
	}, nil
}

// RowSchema is the table schema inferred from domain.WeatherRow.
func RowSchema() (bq.Schema, error) {
	schema, err := bq.InferSchema(domain.WeatherRow{})
	if err != nil {
		return nil, fmt.Errorf("infer row schema: %w", err)
	}
	return schema, nil
}

func (w *Warehouse) tableHandle() *bq.Table {
	return w.client.Dataset(w.dataset).Table(w.table)
}

func (w *Warehouse) KeyExists(ctx context.Context, key domain.NaturalKey) (bool, error) {
	q := w.client.Query(keyExistsSQL(w.project, w.dataset, w.table))
	q.Parameters = []bq.QueryParameter{
		{Name: "name", Value: key.Location},
		{Name: "epoch", Value: key.LocaltimeEpoch},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("query key %s: %w", key, err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return false, fmt.Errorf("read key count %s: %w", key, err)
	}
	return row.N > 0, nil
}

// InsertRows streams rows with their RowID as the insert id, so a retried
// insert of the same row is deduplicated by BigQuery on a best-effort basis.
func (w *Warehouse) InsertRows(ctx context.Context, rows []domain.WeatherRow) error {
	savers := make([]*bq.StructSaver, 0, len(rows))
	for _, r := range rows {
		savers = append(savers, &bq.StructSaver{Struct: r, InsertID: r.RowID, Schema: w.schema})
	}
	if err := w.tableHandle().Inserter().Put(ctx, savers); err != nil {
		return toRowErrors(err)
	}
	return nil
}

func (w *Warehouse) BulkLoad(ctx context.Context, src domain.LoadSource, cfg domain.LoadConfig) error {
	loader := w.tableHandle().LoaderFrom(loadSource(src, cfg, w.schema))
	loader.WriteDisposition = bq.TableWriteDisposition(cfg.WriteMode)
	loader.CreateDisposition = bq.CreateNever

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("start load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job %s: %w", job.ID(), err)
	}
	return nil
}

// Reconcile deletes every row but the earliest ingested per natural key.
func (w *Warehouse) Reconcile(ctx context.Context) (int64, error) {
	job, err := w.client.Query(reconcileSQL(w.project, w.dataset, w.table)).Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("start reconcile: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait reconcile %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("reconcile %s: %w", job.ID(), err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bq.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

func (w *Warehouse) EnsureTable(ctx context.Context) error {
	ds := w.client.Dataset(w.dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		if !isStatus(err, http.StatusNotFound) {
			return fmt.Errorf("dataset %s: %w", w.dataset, err)
		}
		err = ds.Create(ctx, &bq.DatasetMetadata{Location: w.location})
		if err != nil && !isStatus(err, http.StatusConflict) {
			return fmt.Errorf("create dataset %s: %w", w.dataset, err)
		}
	}

	t := w.tableHandle()
	if _, err := t.Metadata(ctx); err != nil {
		if !isStatus(err, http.StatusNotFound) {
			return fmt.Errorf("table %s: %w", w.table, err)
		}
		err = t.Create(ctx, &bq.TableMetadata{
			Schema:      w.schema,
			Description: "Current weather observations, one row per location and local time.",
		})
		if err != nil && !isStatus(err, http.StatusConflict) {
			return fmt.Errorf("create table %s: %w", w.table, err)
		}
	}
	return nil
}

func (w *Warehouse) Ping(ctx context.Context) error {
	if _, err := w.client.Dataset(w.dataset).Metadata(ctx); err != nil {
		return fmt.Errorf("dataset %s: %w", w.dataset, err)
	}
	return nil
}

func (w *Warehouse) Close() error {
	return w.client.Close()
}

// qualified returns the backtick-quoted table path. Identifiers come from
// configuration, never from record values.
func qualified(project, dataset, table string) string {
	return "`" + strings.Join([]string{project, dataset, table}, ".") + "`"
}

func keyExistsSQL(project, dataset, table string) string {
	return "SELECT COUNT(1) AS n FROM " + qualified(project, dataset, table) +
		" WHERE location.name = @name AND location.localtime_epoch = @epoch"
}

func reconcileSQL(project, dataset, table string) string {
	t := qualified(project, dataset, table)
	return "DELETE FROM " + t + " WHERE row_id IN (" +
		"SELECT row_id FROM (" +
		"SELECT row_id, ROW_NUMBER() OVER (" +
		"PARTITION BY location.name, location.localtime_epoch " +
		"ORDER BY ingested_at, row_id) AS rn FROM " + t +
		") WHERE rn > 1)"
}

// loadSource reads gs:// URIs in place and uploads anything else from memory.
func loadSource(src domain.LoadSource, cfg domain.LoadConfig, schema bq.Schema) bq.LoadSource {
	var fc *bq.FileConfig
	var ls bq.LoadSource

	if strings.HasPrefix(src.URI, "gs://") {
		ref := bq.NewGCSReference(src.URI)
		fc, ls = &ref.FileConfig, ref
	} else {
		rs := bq.NewReaderSource(bytes.NewReader(src.Data))
		fc, ls = &rs.FileConfig, rs
	}

	fc.SourceFormat = bq.DataFormat(cfg.Format)
	if cfg.SchemaMode == domain.SchemaAutodetect {
		fc.AutoDetect = true
	} else {
		fc.Schema = schema
	}
	return ls
}

// toRowErrors converts a PutMultiError into domain.RowErrors.
func toRowErrors(err error) error {
	var multi bq.PutMultiError
	if !errors.As(err, &multi) {
		return fmt.Errorf("insert rows: %w", err)
	}
	out := make(domain.RowErrors, 0, len(multi))
	for _, re := range multi {
		out = append(out, domain.RowError{Index: re.RowIndex, RowID: re.InsertID, Err: re.Errors})
	}
	return out
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
