// Package duckdb implements domain.Warehouse on an embedded DuckDB database
// for local runs and tests.
package duckdb

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	_ "github.com/duckdb/duckdb-go/v2"
)

// Warehouse stores rows with flat location columns and the current block
// as JSON text.
type Warehouse struct {
	db     *sql.DB
	schema string
	table  string
}

// New opens the database at path. An empty path opens an in-memory database.
func New(path, schema, table string) (*Warehouse, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	return &Warehouse{db: db, schema: schema, table: table}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (w *Warehouse) qualified() string {
	return quoteIdent(w.schema) + "." + quoteIdent(w.table)
}

func (w *Warehouse) EnsureTable(ctx context.Context) error {
	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + quoteIdent(w.schema),
		"CREATE TABLE IF NOT EXISTS " + w.qualified() + ` (
			row_id          VARCHAR NOT NULL,
			location_name   VARCHAR NOT NULL,
			region          VARCHAR,
			country         VARCHAR,
			lat             DOUBLE,
			lon             DOUBLE,
			tz_id           VARCHAR,
			localtime_epoch BIGINT NOT NULL,
			"localtime"     VARCHAR,
			"current"       VARCHAR,
			source_blob     VARCHAR,
			ingested_at     TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure table %s: %w", w.qualified(), err)
		}
	}
	return nil
}

func (w *Warehouse) KeyExists(ctx context.Context, key domain.NaturalKey) (bool, error) {
	var n int64
	err := w.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+w.qualified()+" WHERE location_name = ? AND localtime_epoch = ?",
		key.Location, key.LocaltimeEpoch,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query key %s: %w", key, err)
	}
	return n > 0, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (w *Warehouse) insertSQL() string {
	return "INSERT INTO " + w.qualified() +
		` (row_id, location_name, region, country, lat, lon, tz_id, localtime_epoch, "localtime", "current", source_blob, ingested_at)` +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
}

func (w *Warehouse) insert(ctx context.Context, ex execer, r domain.WeatherRow) error {
	current, err := json.Marshal(r.Current)
	if err != nil {
		return fmt.Errorf("encode current: %w", err)
	}
	loc := r.Location
	_, err = ex.ExecContext(ctx, w.insertSQL(),
		r.RowID, loc.Name, loc.Region, loc.Country, loc.Lat, loc.Lon, loc.TzID,
		loc.LocaltimeEpoch, loc.Localtime, string(current), r.SourceBlob, r.IngestedAt,
	)
	return err
}

// InsertRows inserts each row independently and reports per-row failures.
func (w *Warehouse) InsertRows(ctx context.Context, rows []domain.WeatherRow) error {
	var errs domain.RowErrors
	for i, r := range rows {
		if err := w.insert(ctx, w.db, r); err != nil {
			errs = append(errs, domain.RowError{Index: i, RowID: r.RowID, Err: err})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// BulkLoad loads the NDJSON in src.Data in one transaction. DuckDB cannot
// read the store URIs used by the other backends, so Data is required.
func (w *Warehouse) BulkLoad(ctx context.Context, src domain.LoadSource, cfg domain.LoadConfig) error {
	if cfg.Format != domain.LoadFormatNDJSON {
		return fmt.Errorf("bulk load: unsupported format %q", cfg.Format)
	}
	if len(src.Data) == 0 {
		return fmt.Errorf("bulk load %s: no inline data", src.URI)
	}
	rows, err := decodeNDJSON(src.Data)
	if err != nil {
		return fmt.Errorf("bulk load %s: %w", src.URI, err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if cfg.WriteMode == domain.WriteTruncate {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+w.qualified()); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}
	for _, r := range rows {
		if err := w.insert(ctx, tx, r); err != nil {
			return fmt.Errorf("load row %s: %w", r.RowID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load: %w", err)
	}
	return nil
}

// Reconcile keeps the earliest ingested row per natural key.
func (w *Warehouse) Reconcile(ctx context.Context) (int64, error) {
	t := w.qualified()
	res, err := w.db.ExecContext(ctx, "DELETE FROM "+t+" WHERE row_id IN ("+
		"SELECT row_id FROM ("+
		"SELECT row_id, ROW_NUMBER() OVER (PARTITION BY location_name, localtime_epoch ORDER BY ingested_at, row_id) AS rn FROM "+t+
		") WHERE rn > 1)")
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reconcile rows affected: %w", err)
	}
	return n, nil
}

func (w *Warehouse) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

func decodeNDJSON(data []byte) ([]domain.WeatherRow, error) {
	var rows []domain.WeatherRow
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var r domain.WeatherRow
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if r.RowID == "" {
			return nil, fmt.Errorf("line %d: %w", line, errMissingRowID)
		}
		rows = append(rows, r)
	}
	return rows, sc.Err()
}

var errMissingRowID = errors.New("missing row_id")
