//go:build weatherapi

package weatherapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real weatherapi.com API and require WEATHER_API_KEY.
// Run with: go test -tags=weatherapi ./internal/adapter/weatherapi/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	key := os.Getenv("WEATHER_API_KEY")
	if key == "" {
		t.Fatal("WEATHER_API_KEY must be set to run smoke tests")
	}
	return NewClient(key, DefaultBaseURL, 10*time.Second, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_Fetch(t *testing.T) {
	c := smokeClient(t)

	data, err := c.Fetch(context.Background(), "London")
	require.NoError(t, err)

	var body struct {
		Location struct {
			Name           string `json:"name"`
			LocaltimeEpoch int64  `json:"localtime_epoch"`
		} `json:"location"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "London", body.Location.Name)
	assert.Greater(t, body.Location.LocaltimeEpoch, int64(0))
}

func TestSmoke_Fetch_UnknownLocation(t *testing.T) {
	c := smokeClient(t)

	_, err := c.Fetch(context.Background(), "XYZNONEXISTENT99")
	require.Error(t, err)
}
