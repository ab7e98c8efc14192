package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBlobNotFound is returned by BlobStore implementations for missing objects.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrUnknownStage is returned for trigger commands that name no stage.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrMarkerConflict is returned when a blob already holds a different terminal state.
	ErrMarkerConflict = errors.New("marker already in a different terminal state")
)

// MalformedRecordError reports a staged payload that cannot be ingested.
// The blob is left untouched so it stays visible for manual review.
type MalformedRecordError struct {
	Blob   string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record %s: %s: %v", e.Blob, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed record %s: %s", e.Blob, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// TransientIOError wraps a failed storage, warehouse, or network call.
// The affected record stays unprocessed and is retried on the next run.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// Transient wraps err as a *TransientIOError unless it already is one.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientIOError
	if errors.As(err, &te) {
		return err
	}
	return &TransientIOError{Op: op, Err: err}
}

// IsTransient reports whether err is retryable on a later run.
func IsTransient(err error) bool {
	var te *TransientIOError
	return errors.As(err, &te)
}

// IsMalformed reports whether err describes a malformed record.
func IsMalformed(err error) bool {
	var me *MalformedRecordError
	return errors.As(err, &me)
}

// StatusError is returned by the weather source for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather API error: status %d: %s", e.StatusCode, e.Body)
}

// RowError is one rejected row from a multi-row insert.
type RowError struct {
	Index int
	RowID string
	Err   error
}

// RowErrors lists per-row insert failures. Rows not listed were accepted.
type RowErrors []RowError

func (e RowErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, re := range e {
		msgs = append(msgs, fmt.Sprintf("row %d (%s): %v", re.Index, re.RowID, re.Err))
	}
	return "insert rows: " + strings.Join(msgs, "; ")
}
