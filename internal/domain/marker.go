package domain

import "context"

// MarkerState is the ingest status attached to a staged blob.
type MarkerState string

const (
	MarkerUnprocessed MarkerState = "unprocessed"
	MarkerProcessed   MarkerState = "processed"
	MarkerDuplicate   MarkerState = "duplicate"
)

// Terminal reports whether no further transition is allowed from s.
func (s MarkerState) Terminal() bool {
	return s == MarkerProcessed || s == MarkerDuplicate
}

// Marker records ingest outcomes out-of-band from the payload.
type Marker interface {
	// State returns the current marker of a staged blob.
	State(ctx context.Context, ref BlobRef) (MarkerState, error)

	// Mark moves a blob to a terminal state. Re-marking the same state is a
	// no-op; marking a different terminal state returns ErrMarkerConflict.
	Mark(ctx context.Context, ref BlobRef, state MarkerState) error
}

// Classification is the dedup decision for one record.
type Classification string

const (
	ClassNew       Classification = "new"
	ClassDuplicate Classification = "duplicate"
	ClassMalformed Classification = "malformed"
)
