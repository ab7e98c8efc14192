package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Storage backends.
const (
	StorageGCS = "gcs"
	StorageS3  = "s3"
)

// Warehouse backends.
const (
	WarehouseBigQuery = "bigquery"
	WarehouseDuckDB   = "duckdb"
)

// Load modes.
const (
	LoadModeInsert = "insert"
	LoadModeBulk   = "bulk"
)

// Marker backends.
const (
	MarkerRename = "rename"
	MarkerRedis  = "redis"
)

// requiredKeys must all be present; absence of any is fatal.
var requiredKeys = []string{"PROJECT_ID", "DATASET_ID", "TABLE_ID", "BUCKET_NAME", "WEATHER_API_KEY"}

// Config holds all service settings, populated from environment variables.
type Config struct {
	ProjectID     string
	DatasetID     string
	TableID       string
	BucketName    string
	WeatherAPIKey string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	StageTimeout    time.Duration

	CitiesFile    string
	Cities        []string
	StagingPrefix string

	WeatherAPIURL     string
	WeatherTimeout    time.Duration
	WeatherMaxRetries int

	StorageBackend   string
	S3Region         string
	S3Endpoint       string
	S3ForcePathStyle bool

	WarehouseBackend string
	DatasetLocation  string
	DuckDBPath       string
	LoadMode         string

	MarkerBackend   string
	RedisAddr       string
	RedisDB         int
	MarkerLedgerKey string

	IngestConcurrency int
	KeyCacheSize      int

	// Kafka trigger transport. Disabled when KafkaBrokers is empty.
	KafkaBrokers      []string
	KafkaTriggerTopic string
	KafkaGroupID      string

	// Cron specs; an empty spec disables that schedule.
	FetchSchedule     string
	LoadSchedule      string
	ReconcileSchedule string
}

// ConfigError lists every missing or invalid setting found by Load.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

func (e *ConfigError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// KafkaEnabled reports whether the Kafka trigger transport is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
// All problems are reported together in a single *ConfigError.
func Load() (*Config, error) {
	cerr := &ConfigError{}
	for _, key := range requiredKeys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			cerr.Missing = append(cerr.Missing, key)
		}
	}

	p := parser{err: cerr}
	cfg := &Config{
		ProjectID:     strings.TrimSpace(os.Getenv("PROJECT_ID")),
		DatasetID:     strings.TrimSpace(os.Getenv("DATASET_ID")),
		TableID:       strings.TrimSpace(os.Getenv("TABLE_ID")),
		BucketName:    strings.TrimSpace(os.Getenv("BUCKET_NAME")),
		WeatherAPIKey: strings.TrimSpace(os.Getenv("WEATHER_API_KEY")),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        p.oneOf("LOG_LEVEL", "info", "debug", "info", "warn", "error"),
		LogFormat:       p.oneOf("LOG_FORMAT", "json", "json", "text"),
		ShutdownTimeout: p.shutdownTimeout(),
		StageTimeout:    p.duration("STAGE_TIMEOUT", "5m"),

		CitiesFile:    sharedcfg.EnvOrDefault("CITIES_FILE", "cities.txt"),
		Cities:        sharedcfg.ParseBrokers(os.Getenv("CITIES")),
		StagingPrefix: strings.Trim(sharedcfg.EnvOrDefault("STAGING_PREFIX", "weather_data"), "/"),

		WeatherAPIURL:     strings.TrimRight(sharedcfg.EnvOrDefault("WEATHER_API_URL", "https://api.weatherapi.com/v1"), "/"),
		WeatherTimeout:    p.duration("WEATHER_TIMEOUT", "10s"),
		WeatherMaxRetries: p.intRange("WEATHER_MAX_RETRIES", 3, 0, 10),

		StorageBackend:   p.oneOf("STORAGE_BACKEND", StorageGCS, StorageGCS, StorageS3),
		S3Region:         os.Getenv("S3_REGION"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3ForcePathStyle: p.boolean("S3_FORCE_PATH_STYLE", false),

		WarehouseBackend: p.oneOf("WAREHOUSE_BACKEND", WarehouseBigQuery, WarehouseBigQuery, WarehouseDuckDB),
		DatasetLocation:  sharedcfg.EnvOrDefault("DATASET_LOCATION", "US"),
		DuckDBPath:       sharedcfg.EnvOrDefault("DUCKDB_PATH", "weather.duckdb"),
		LoadMode:         p.oneOf("LOAD_MODE", LoadModeInsert, LoadModeInsert, LoadModeBulk),

		MarkerBackend:   p.oneOf("MARKER_BACKEND", MarkerRename, MarkerRename, MarkerRedis),
		RedisAddr:       sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:         p.intRange("REDIS_DB", 0, 0, 15),
		MarkerLedgerKey: sharedcfg.EnvOrDefault("MARKER_LEDGER_KEY", "weather-ingest:markers"),

		IngestConcurrency: p.intRange("INGEST_CONCURRENCY", 4, 1, 64),
		KeyCacheSize:      p.intRange("KEY_CACHE_SIZE", 10000, 1, 1_000_000),

		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTriggerTopic: sharedcfg.EnvOrDefault("KAFKA_TRIGGER_TOPIC", "weather-ingest-triggers"),
		KafkaGroupID:      sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "weather-ingest"),

		FetchSchedule:     os.Getenv("FETCH_SCHEDULE"),
		LoadSchedule:      os.Getenv("LOAD_SCHEDULE"),
		ReconcileSchedule: os.Getenv("RECONCILE_SCHEDULE"),
	}

	if cfg.StorageBackend == StorageS3 && cfg.S3Region == "" {
		cerr.Missing = append(cerr.Missing, "S3_REGION")
	}
	if !cerr.empty() {
		return nil, cerr
	}
	return cfg, nil
}

// parser collects invalid keys instead of failing on the first one.
type parser struct {
	err *ConfigError
}

func (p parser) invalid(key, value string) {
	p.err.Invalid = append(p.err.Invalid, fmt.Sprintf("%s=%q", key, value))
}

func (p parser) shutdownTimeout() time.Duration {
	d, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		p.invalid("SHUTDOWN_TIMEOUT", os.Getenv("SHUTDOWN_TIMEOUT"))
		return 0
	}
	return d
}

func (p parser) duration(key, fallback string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.invalid(key, s)
		return 0
	}
	return d
}

func (p parser) intRange(key string, fallback, lo, hi int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		p.invalid(key, s)
		return fallback
	}
	return n
}

func (p parser) boolean(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.invalid(key, s)
		return fallback
	}
	return b
}

func (p parser) oneOf(key, fallback string, allowed ...string) string {
	s := strings.ToLower(sharedcfg.EnvOrDefault(key, fallback))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	p.invalid(key, s)
	return fallback
}
