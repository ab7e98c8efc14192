// Package marker implements domain.Marker on top of the staging store or a
// Redis ledger.
package marker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
)

// Default prefixes for terminal objects under RenameMarker.
const (
	ProcessedPrefix = "processed/"
	DuplicatePrefix = "duplicate/"
)

// RenameMarker encodes the marker in the object's location: terminal
// objects are moved under ProcessedPrefix or DuplicatePrefix, so listing the
// staging prefix only ever yields unprocessed blobs.
type RenameMarker struct {
	store domain.BlobStore
}

// NewRenameMarker creates a marker that renames blobs within store.
func NewRenameMarker(store domain.BlobStore) *RenameMarker {
	return &RenameMarker{store: store}
}

// State derives the marker from the blob name without any I/O. It fails
// only once ctx is done.
func (m *RenameMarker) State(ctx context.Context, ref domain.BlobRef) (domain.MarkerState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.HasPrefix(ref.Name, ProcessedPrefix):
		return domain.MarkerProcessed, nil
	case strings.HasPrefix(ref.Name, DuplicatePrefix):
		return domain.MarkerDuplicate, nil
	default:
		return domain.MarkerUnprocessed, nil
	}
}

// Mark renames the blob under the prefix of state. A rename whose source is
// already gone succeeds when the destination exists, which makes repeated
// and concurrent marks of the same state harmless.
func (m *RenameMarker) Mark(ctx context.Context, ref domain.BlobRef, state domain.MarkerState) error {
	if !state.Terminal() {
		return fmt.Errorf("mark %s: %q is not a terminal state", ref.Name, state)
	}

	current, err := m.State(ctx, ref)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", ref.Name, state, err)
	}
	if current.Terminal() {
		if current == state {
			return nil
		}
		return fmt.Errorf("mark %s %s: %w", ref.Name, state, domain.ErrMarkerConflict)
	}

	dst := TargetName(ref.Name, state)
	err = m.store.Rename(ctx, ref, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrBlobNotFound) {
		return domain.Transient("mark "+string(state), err)
	}

	// Source is gone: someone else already moved it.
	if ok, xerr := m.store.Exists(ctx, dst); xerr == nil && ok {
		return nil
	}
	other := domain.MarkerProcessed
	if state == domain.MarkerProcessed {
		other = domain.MarkerDuplicate
	}
	if ok, xerr := m.store.Exists(ctx, TargetName(ref.Name, other)); xerr == nil && ok {
		return fmt.Errorf("mark %s %s: %w", ref.Name, state, domain.ErrMarkerConflict)
	}
	return fmt.Errorf("mark %s %s: %w", ref.Name, state, err)
}

// TargetName returns where a blob named name lives once marked with state.
func TargetName(name string, state domain.MarkerState) string {
	switch state {
	case domain.MarkerProcessed:
		return ProcessedPrefix + name
	case domain.MarkerDuplicate:
		return DuplicatePrefix + name
	default:
		return name
	}
}
