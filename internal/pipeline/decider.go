package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
)

// Decision is the dedup outcome for one staged blob.
type Decision struct {
	Class  domain.Classification
	Record domain.RawRecord

	// Err carries the *domain.MalformedRecordError for ClassMalformed.
	Err error
}

// Decider classifies staged records as new, duplicate, or malformed.
type Decider struct {
	store     domain.BlobStore
	warehouse domain.Warehouse
}

// NewDecider creates a Decider reading payloads from store and checking
// natural keys against warehouse.
func NewDecider(store domain.BlobStore, warehouse domain.Warehouse) *Decider {
	return &Decider{store: store, warehouse: warehouse}
}

// Classify reads and parses the blob, then checks the warehouse for its
// natural key. Malformed payloads are a normal outcome, not an error. A
// vanished blob returns an error wrapping domain.ErrBlobNotFound; any other
// failure is a *domain.TransientIOError.
func (d *Decider) Classify(ctx context.Context, entity string, ref domain.BlobRef) (Decision, error) {
	data, err := d.store.Read(ctx, ref.Name)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return Decision{}, fmt.Errorf("classify %s: %w", ref.Name, err)
		}
		return Decision{}, domain.Transient("read "+ref.Name, err)
	}

	rec, err := domain.ParseRecord(entity, ref, data)
	if err != nil {
		return Decision{
			Class:  domain.ClassMalformed,
			Record: domain.RawRecord{Entity: entity, Blob: ref, Payload: data},
			Err:    err,
		}, nil
	}

	exists, err := d.warehouse.KeyExists(ctx, rec.Key)
	if err != nil {
		return Decision{}, domain.Transient("existence check "+rec.Key.String(), err)
	}
	if exists {
		return Decision{Class: domain.ClassDuplicate, Record: rec}, nil
	}
	return Decision{Class: domain.ClassNew, Record: rec}, nil
}
