package marker

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ledgerClient is the subset of redis.Cmdable the ledger needs.
type ledgerClient interface {
	HSetNX(ctx context.Context, key, field string, value interface{}) *redis.BoolCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// LedgerMarker keeps markers in a Redis hash keyed by blob name. Blobs stay
// where they were staged; HSETNX makes the first terminal state permanent.
type LedgerMarker struct {
	client ledgerClient
	key    string
}

// NewLedgerMarker creates a marker storing states in the hash at key.
func NewLedgerMarker(client ledgerClient, key string) *LedgerMarker {
	return &LedgerMarker{client: client, key: key}
}

func (m *LedgerMarker) State(ctx context.Context, ref domain.BlobRef) (domain.MarkerState, error) {
	v, err := m.client.HGet(ctx, m.key, ref.Name).Result()
	if errors.Is(err, redis.Nil) {
		return domain.MarkerUnprocessed, nil
	}
	if err != nil {
		return "", domain.Transient("marker state", err)
	}
	switch s := domain.MarkerState(v); s {
	case domain.MarkerProcessed, domain.MarkerDuplicate:
		return s, nil
	default:
		return "", fmt.Errorf("marker state %s: unexpected value %q", ref.Name, v)
	}
}

func (m *LedgerMarker) Mark(ctx context.Context, ref domain.BlobRef, state domain.MarkerState) error {
	if !state.Terminal() {
		return fmt.Errorf("mark %s: %q is not a terminal state", ref.Name, state)
	}

	set, err := m.client.HSetNX(ctx, m.key, ref.Name, string(state)).Result()
	if err != nil {
		return domain.Transient("mark "+string(state), err)
	}
	if set {
		return nil
	}

	current, err := m.State(ctx, ref)
	if err != nil {
		return err
	}
	if current == state {
		return nil
	}
	return fmt.Errorf("mark %s %s: %w", ref.Name, state, domain.ErrMarkerConflict)
}
