package domain

import (
	"context"
	"iter"
)

// BlobStore is a prefix-listable object store holding staged payloads.
type BlobStore interface {
	// List lazily yields objects under prefix in name order.
	List(ctx context.Context, prefix string) iter.Seq2[BlobRef, error]
	Read(ctx context.Context, name string) ([]byte, error)
	Upload(ctx context.Context, name string, data []byte) error
	// Rename moves ref to newName. It returns ErrBlobNotFound when ref is gone.
	Rename(ctx context.Context, ref BlobRef, newName string) error
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// URI returns the store-qualified location, e.g. "gs://bucket/name".
	URI(name string) string
}

// Warehouse is the columnar table holding WeatherRows. Every query that
// carries record values binds them as parameters.
type Warehouse interface {
	// KeyExists reports whether a row with the natural key is present.
	KeyExists(ctx context.Context, key NaturalKey) (bool, error)

	// InsertRows streams rows into the table. Partial failures are returned
	// as RowErrors.
	InsertRows(ctx context.Context, rows []WeatherRow) error

	// BulkLoad runs a load job from a URI or in-memory file.
	BulkLoad(ctx context.Context, src LoadSource, cfg LoadConfig) error

	// Reconcile deletes all but one row per natural key and returns the
	// number of rows removed.
	Reconcile(ctx context.Context) (int64, error)

	// EnsureTable creates the dataset and table when missing.
	EnsureTable(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// WeatherSource fetches the current observation for one entity.
// Non-200 responses are returned as *StatusError.
type WeatherSource interface {
	Fetch(ctx context.Context, entity string) ([]byte, error)
}

// LoadFormat is the file format of a bulk load.
type LoadFormat string

const LoadFormatNDJSON LoadFormat = "NEWLINE_DELIMITED_JSON"

// WriteMode controls how a bulk load treats existing rows.
type WriteMode string

const (
	WriteAppend   WriteMode = "WRITE_APPEND"
	WriteTruncate WriteMode = "WRITE_TRUNCATE"
)

// SchemaMode controls whether a bulk load detects or enforces the schema.
type SchemaMode string

const (
	SchemaAutodetect SchemaMode = "autodetect"
	SchemaFixed      SchemaMode = "fixed"
)

// LoadConfig configures a bulk load job.
type LoadConfig struct {
	Format     LoadFormat
	WriteMode  WriteMode
	SchemaMode SchemaMode
}

// DefaultLoadConfig appends newline-delimited JSON against the table schema.
var DefaultLoadConfig = LoadConfig{
	Format:     LoadFormatNDJSON,
	WriteMode:  WriteAppend,
	SchemaMode: SchemaFixed,
}

// LoadSource is either a store URI the warehouse can read directly or an
// in-memory file. Data is used when URI is empty or unreadable by the warehouse.
type LoadSource struct {
	URI  string
	Data []byte
}
