package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
)

// stagingTimeLayout names staged blobs so that name order is fetch order.
const stagingTimeLayout = "2006-01-02T15:04:05.000000"

// Fetcher pulls current observations from the weather source and stages
// them in the blob store.
type Fetcher struct {
	source  domain.WeatherSource
	store   domain.BlobStore
	prefix  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFetcher creates a Fetcher staging under "<prefix>/<city>/".
func NewFetcher(source domain.WeatherSource, store domain.BlobStore, prefix string, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		source:  source,
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logger,
		metrics: metrics,
	}
}

// StagingName returns the blob name for a fetch of city at t.
func StagingName(prefix, city string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", strings.Trim(prefix, "/"), city, t.UTC().Format(stagingTimeLayout))
}

// Run fetches and stages each city. One city failing does not stop the rest.
func (f *Fetcher) Run(ctx context.Context, cities []string) domain.StageReport {
	start := time.Now()
	report := domain.StageReport{Stage: domain.StageFetch}

	for _, city := range cities {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}
		report.Entities = append(report.Entities, f.fetchCity(ctx, city))
	}

	report.Duration = time.Since(start)
	return report
}

func (f *Fetcher) fetchCity(ctx context.Context, city string) domain.EntityReport {
	rep := domain.EntityReport{Entity: city}

	start := time.Now()
	data, err := f.source.Fetch(ctx, city)
	f.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		f.metrics.FetchRequests.WithLabelValues("error").Inc()
		f.logger.Error("fetch weather failed", "entity", city, "error", err)
		rep.Err = domain.Transient("fetch "+city, err)
		return rep
	}
	f.metrics.FetchRequests.WithLabelValues("success").Inc()

	// Compact to a single line so the blob is also a valid NDJSON file.
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		f.logger.Error("weather payload is not JSON", "entity", city, "error", err)
		rep.Err = fmt.Errorf("compact payload for %s: %w", city, err)
		return rep
	}

	name := StagingName(f.prefix, city, domain.Now())
	if err := f.store.Upload(ctx, name, buf.Bytes()); err != nil {
		f.logger.Error("stage weather payload failed", "entity", city, "blob", name, "error", err)
		rep.Err = domain.Transient("upload "+name, err)
		return rep
	}

	f.logger.Info("weather payload staged", "entity", city, "uri", f.store.URI(name))
	rep.Fetched = 1
	return rep
}
