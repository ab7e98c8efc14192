package pipeline

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
)

// EnumerationError means an entity's staging prefix could not be listed.
// It aborts that entity only.
type EnumerationError struct {
	Prefix string
	Err    error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Prefix, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// Enumerator lists unprocessed staged records for an entity.
type Enumerator struct {
	store  domain.BlobStore
	marker domain.Marker
	prefix string
}

// NewEnumerator creates an Enumerator over "<prefix>/<entity>/".
func NewEnumerator(store domain.BlobStore, marker domain.Marker, prefix string) *Enumerator {
	return &Enumerator{store: store, marker: marker, prefix: strings.Trim(prefix, "/")}
}

// EntityPrefix returns the staging prefix for entity.
func (e *Enumerator) EntityPrefix(entity string) string {
	return e.prefix + "/" + entity + "/"
}

// Unprocessed lazily yields the entity's .json blobs whose marker is
// unprocessed. A listing failure is yielded once as *EnumerationError and
// ends the sequence; a marker lookup failure is yielded with its ref and
// enumeration continues. Re-listing after a partial failure is safe.
func (e *Enumerator) Unprocessed(ctx context.Context, entity string) iter.Seq2[domain.BlobRef, error] {
	prefix := e.EntityPrefix(entity)
	return func(yield func(domain.BlobRef, error) bool) {
		for ref, err := range e.store.List(ctx, prefix) {
			if err != nil {
				yield(domain.BlobRef{}, &EnumerationError{Prefix: prefix, Err: err})
				return
			}
			if !strings.HasSuffix(ref.Name, ".json") {
				continue
			}

			state, err := e.marker.State(ctx, ref)
			if err != nil {
				if !yield(ref, err) {
					return
				}
				continue
			}
			if state != domain.MarkerUnprocessed {
				continue
			}
			if !yield(ref, nil) {
				return
			}
		}
	}
}
