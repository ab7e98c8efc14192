package pipeline_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"sync"

	"github.com/couchcryptid/weather-ingest-service/internal/adapter/memstore"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/marker"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	"github.com/couchcryptid/weather-ingest-service/internal/pipeline"
)

const stagingPrefix = "weather_data"

// --- warehouse ---

type fakeWarehouse struct {
	mu          sync.Mutex
	rows        []domain.WeatherRow
	existsErr   map[domain.NaturalKey]error
	insertErr   error
	existsCalls int
	bulkLoads   []domain.LoadSource
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{existsErr: make(map[domain.NaturalKey]error)}
}

func (w *fakeWarehouse) KeyExists(_ context.Context, key domain.NaturalKey) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.existsCalls++
	if err := w.existsErr[key]; err != nil {
		return false, err
	}
	for _, r := range w.rows {
		if r.Key() == key {
			return true, nil
		}
	}
	return false, nil
}

func (w *fakeWarehouse) InsertRows(_ context.Context, rows []domain.WeatherRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.insertErr != nil {
		return w.insertErr
	}
	w.rows = append(w.rows, rows...)
	return nil
}

func (w *fakeWarehouse) BulkLoad(ctx context.Context, src domain.LoadSource, _ domain.LoadConfig) error {
	w.mu.Lock()
	w.bulkLoads = append(w.bulkLoads, src)
	w.mu.Unlock()

	rows, err := decodeRows(src.Data)
	if err != nil {
		return err
	}
	return w.InsertRows(ctx, rows)
}

// Reconcile keeps the earliest-ingested row per key, ties broken by row id.
func (w *fakeWarehouse) Reconcile(_ context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sorted := append([]domain.WeatherRow(nil), w.rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].IngestedAt.Equal(sorted[j].IngestedAt) {
			return sorted[i].IngestedAt.Before(sorted[j].IngestedAt)
		}
		return sorted[i].RowID < sorted[j].RowID
	})

	seen := make(map[domain.NaturalKey]bool)
	var kept []domain.WeatherRow
	for _, r := range sorted {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		kept = append(kept, r)
	}
	removed := int64(len(w.rows) - len(kept))
	w.rows = kept
	return removed, nil
}

func (w *fakeWarehouse) EnsureTable(context.Context) error { return nil }
func (w *fakeWarehouse) Ping(context.Context) error        { return nil }
func (w *fakeWarehouse) Close() error                      { return nil }

func (w *fakeWarehouse) Rows() []domain.WeatherRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.WeatherRow(nil), w.rows...)
}

// --- store ---

// faultyStore wraps memstore with injectable list and read failures.
type faultyStore struct {
	*memstore.Store
	listErr map[string]error
	readErr map[string]error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:   memstore.New("lake"),
		listErr: make(map[string]error),
		readErr: make(map[string]error),
	}
}

func (s *faultyStore) List(ctx context.Context, prefix string) iter.Seq2[domain.BlobRef, error] {
	if err := s.listErr[prefix]; err != nil {
		return func(yield func(domain.BlobRef, error) bool) {
			yield(domain.BlobRef{}, err)
		}
	}
	return s.Store.List(ctx, prefix)
}

func (s *faultyStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := s.readErr[name]; err != nil {
		return nil, err
	}
	return s.Store.Read(ctx, name)
}

// --- source ---

type fakeSource struct {
	payloads map[string]string
	errs     map[string]error
}

func (s *fakeSource) Fetch(_ context.Context, entity string) ([]byte, error) {
	if err := s.errs[entity]; err != nil {
		return nil, err
	}
	p, ok := s.payloads[entity]
	if !ok {
		return nil, &domain.StatusError{StatusCode: 400, Body: `{"error":{"code":1006,"message":"No matching location found."}}`}
	}
	return []byte(p), nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func payload(name string, epoch int64) string {
	return fmt.Sprintf(`{"location":{"name":%q,"country":"Somewhere","localtime_epoch":%d,"localtime":"2025-04-03 11:03"},"current":{"temp_c":12.5,"condition":{"text":"Sunny","code":1000}}}`, name, epoch)
}

func blobName(entity, stamp string) string {
	return stagingPrefix + "/" + entity + "/" + stamp + ".json"
}

type harness struct {
	store     *faultyStore
	warehouse *fakeWarehouse
	metrics   *observability.Metrics
	loader    *pipeline.Loader
}

func newHarness(opts ...pipeline.CommitterOption) *harness {
	h := &harness{
		store:     newFaultyStore(),
		warehouse: newFakeWarehouse(),
		metrics:   observability.NewMetricsForTesting(),
	}
	m := marker.NewRenameMarker(h.store)
	logger := discardLogger()
	h.loader = pipeline.NewLoader(
		pipeline.NewEnumerator(h.store, m, stagingPrefix),
		pipeline.NewDecider(h.store, h.warehouse),
		pipeline.NewCommitter(h.warehouse, h.store, m, logger, h.metrics, opts...),
		2,
		logger,
		h.metrics,
	)
	return h
}

func (h *harness) stage(name, data string) {
	if err := h.store.Upload(context.Background(), name, []byte(data)); err != nil {
		panic(err)
	}
}

func entityReport(r domain.StageReport, entity string) domain.EntityReport {
	for _, e := range r.Entities {
		if e.Entity == entity {
			return e
		}
	}
	return domain.EntityReport{}
}

func decodeRows(data []byte) ([]domain.WeatherRow, error) {
	var rows []domain.WeatherRow
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var r domain.WeatherRow
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, sc.Err()
}
