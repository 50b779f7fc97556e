package app

import (
	"strings"
	"time"

	dbpkg "github.com/yungbote/aggsync/internal/data/db"
	"github.com/yungbote/aggsync/internal/observability"
	"github.com/yungbote/aggsync/internal/platform/envutil"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

type Config struct {
	ServiceName string
	HTTPAddr    string
	CORSOrigins []string

	DB dbpkg.Config

	// AggregatesFile names a YAML file whose definitions are merged after the built-in
	// ones; an entry with a built-in name replaces it.
	AggregatesFile     string
	RefreshBatchSize   int
	RefreshConcurrency int

	RedisAddr    string
	RedisChannel string

	MetricsEnabled  bool
	ShutdownTimeout time.Duration

	// Tracing is completed by App.OtelConfig once the registry is built.
	Tracing observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		ServiceName: envutil.String("SERVICE_NAME", "aggsync", log),
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080", log),
		CORSOrigins: splitList(envutil.String("CORS_ORIGINS", "", log)),
		DB: dbpkg.Config{
			Driver:           envutil.String("DB_DRIVER", dbpkg.DriverPostgres, log),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost", log),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432", log),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres", log),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", "", log),
			PostgresName:     envutil.String("POSTGRES_NAME", "aggsync", log),
			SQLitePath:       envutil.String("SQLITE_PATH", "", log),
			SlowThreshold:    time.Duration(envutil.Int("DB_SLOW_QUERY_MS", 1000)) * time.Millisecond,
		},
		AggregatesFile:     envutil.String("AGGREGATES_FILE", "", log),
		RefreshBatchSize:   envutil.Int("AGGREGATE_REFRESH_BATCH", 500),
		RefreshConcurrency: envutil.Int("AGGREGATE_REFRESH_CONCURRENCY", 1),
		RedisAddr:          envutil.String("REDIS_ADDR", "", log),
		RedisChannel:       envutil.String("REDIS_CHANNEL", "aggregate_changes", log),
		MetricsEnabled:     envutil.Bool("METRICS_ENABLED", true),
		ShutdownTimeout:    time.Duration(envutil.Int("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		Tracing: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			Environment: envutil.String("APP_ENV", "", log),
			Version:     envutil.String("SERVICE_VERSION", "", log),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", nil)),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			Stdout:      strings.EqualFold(envutil.String("OTEL_EXPORTER", "", log), "stdout"),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
