package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PROJECT_ID", "vibrant-map")
	t.Setenv("DATASET_ID", "weather_data")
	t.Setenv("TABLE_ID", "weather_records")
	t.Setenv("BUCKET_NAME", "weather_data_lake")
	t.Setenv("WEATHER_API_KEY", "test-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "vibrant-map", cfg.ProjectID)
	assert.Equal(t, "weather_data", cfg.DatasetID)
	assert.Equal(t, "weather_records", cfg.TableID)
	assert.Equal(t, "weather_data_lake", cfg.BucketName)
	assert.Equal(t, "test-key", cfg.WeatherAPIKey)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Minute, cfg.StageTimeout)
	assert.Equal(t, "cities.txt", cfg.CitiesFile)
	assert.Empty(t, cfg.Cities)
	assert.Equal(t, "weather_data", cfg.StagingPrefix)
	assert.Equal(t, "https://api.weatherapi.com/v1", cfg.WeatherAPIURL)
	assert.Equal(t, 10*time.Second, cfg.WeatherTimeout)
	assert.Equal(t, 3, cfg.WeatherMaxRetries)
	assert.Equal(t, StorageGCS, cfg.StorageBackend)
	assert.Equal(t, WarehouseBigQuery, cfg.WarehouseBackend)
	assert.Equal(t, "US", cfg.DatasetLocation)
	assert.Equal(t, LoadModeInsert, cfg.LoadMode)
	assert.Equal(t, MarkerRename, cfg.MarkerBackend)
	assert.Equal(t, 4, cfg.IngestConcurrency)
	assert.Equal(t, 10000, cfg.KeyCacheSize)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "weather-ingest-triggers", cfg.KafkaTriggerTopic)
	assert.Empty(t, cfg.FetchSchedule)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("STAGE_TIMEOUT", "90s")
	t.Setenv("CITIES", "London, St. John's ,,Paris")
	t.Setenv("STAGING_PREFIX", "/raw/weather/")
	t.Setenv("WEATHER_API_URL", "http://localhost:9999/v1/")
	t.Setenv("WEATHER_MAX_RETRIES", "0")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_REGION", "eu-west-1")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")
	t.Setenv("WAREHOUSE_BACKEND", "duckdb")
	t.Setenv("LOAD_MODE", "bulk")
	t.Setenv("MARKER_BACKEND", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("INGEST_CONCURRENCY", "8")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("LOAD_SCHEDULE", "0 */15 * * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 90*time.Second, cfg.StageTimeout)
	assert.Equal(t, []string{"London", "St. John's", "Paris"}, cfg.Cities)
	assert.Equal(t, "raw/weather", cfg.StagingPrefix)
	assert.Equal(t, "http://localhost:9999/v1", cfg.WeatherAPIURL)
	assert.Equal(t, 0, cfg.WeatherMaxRetries)
	assert.Equal(t, StorageS3, cfg.StorageBackend)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.True(t, cfg.S3ForcePathStyle)
	assert.Equal(t, WarehouseDuckDB, cfg.WarehouseBackend)
	assert.Equal(t, LoadModeBulk, cfg.LoadMode)
	assert.Equal(t, MarkerRedis, cfg.MarkerBackend)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 8, cfg.IngestConcurrency)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "0 */15 * * * *", cfg.LoadSchedule)
}

func TestLoad_MissingRequiredAggregated(t *testing.T) {
	t.Setenv("PROJECT_ID", "vibrant-map")
	t.Setenv("TABLE_ID", "")
	t.Setenv("WEATHER_API_KEY", "   ")

	_, err := Load()
	require.Error(t, err)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"DATASET_ID", "TABLE_ID", "BUCKET_NAME", "WEATHER_API_KEY"}, cerr.Missing)
	assert.Contains(t, err.Error(), "DATASET_ID, TABLE_ID, BUCKET_NAME, WEATHER_API_KEY")
}

func TestLoad_InvalidValuesAggregated(t *testing.T) {
	setRequired(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	t.Setenv("WEATHER_TIMEOUT", "soon")
	t.Setenv("INGEST_CONCURRENCY", "0")
	t.Setenv("WAREHOUSE_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Empty(t, cerr.Missing)
	assert.Len(t, cerr.Invalid, 4)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
	assert.Contains(t, err.Error(), "WEATHER_TIMEOUT")
	assert.Contains(t, err.Error(), "INGEST_CONCURRENCY")
	assert.Contains(t, err.Error(), "WAREHOUSE_BACKEND")
}

func TestLoad_S3RequiresRegion(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "s3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_REGION")
}

func TestLoad_MissingAndInvalidTogether(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	require.Error(t, err)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, cerr.Missing, len(requiredKeys))
	assert.Equal(t, []string{`LOG_FORMAT="xml"`}, cerr.Invalid)
}
