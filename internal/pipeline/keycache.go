package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	lru "github.com/hashicorp/golang-lru"
)

// CachedWarehouse wraps a Warehouse with an LRU of natural keys known to be
// present. Only positive results are cached: rows are never deleted down to
// zero for a key, so a cached "exists" stays true.
type CachedWarehouse struct {
	domain.Warehouse
	keys    *lru.Cache
	metrics *observability.Metrics
}

// NewCachedWarehouse creates a cache decorator holding up to size keys.
func NewCachedWarehouse(inner domain.Warehouse, size int, metrics *observability.Metrics) (*CachedWarehouse, error) {
	keys, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}
	return &CachedWarehouse{Warehouse: inner, keys: keys, metrics: metrics}, nil
}

func (c *CachedWarehouse) KeyExists(ctx context.Context, key domain.NaturalKey) (bool, error) {
	if c.keys.Contains(key) {
		c.metrics.KeyCache.WithLabelValues("hit").Inc()
		return true, nil
	}
	c.metrics.KeyCache.WithLabelValues("miss").Inc()

	exists, err := c.Warehouse.KeyExists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		c.keys.Add(key, struct{}{})
	}
	return exists, nil
}

// InsertRows remembers the keys of every accepted row, so a second blob with
// the same key in this process is a duplicate even before the warehouse
// makes the first row queryable.
func (c *CachedWarehouse) InsertRows(ctx context.Context, rows []domain.WeatherRow) error {
	err := c.Warehouse.InsertRows(ctx, rows)

	rejected := make(map[int]bool)
	var rowErrs domain.RowErrors
	switch {
	case err == nil:
	case errors.As(err, &rowErrs):
		for _, re := range rowErrs {
			rejected[re.Index] = true
		}
	default:
		return err
	}

	for i, row := range rows {
		if !rejected[i] {
			c.keys.Add(row.Key(), struct{}{})
		}
	}
	return err
}

// BulkLoad remembers keys found in src.Data after a successful load.
func (c *CachedWarehouse) BulkLoad(ctx context.Context, src domain.LoadSource, cfg domain.LoadConfig) error {
	if err := c.Warehouse.BulkLoad(ctx, src, cfg); err != nil {
		return err
	}

	sc := bufio.NewScanner(bytes.NewReader(src.Data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var row domain.WeatherRow
		if json.Unmarshal(sc.Bytes(), &row) == nil && row.Location.Name != "" {
			c.keys.Add(row.Key(), struct{}{})
		}
	}
	return nil
}
