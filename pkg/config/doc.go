// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Core settings:
//
//	BASESTUB_SUPABASE_URL="http://localhost:54321"  # the host the emulator intercepts
//	BASESTUB_DEBUG="false"                          # debug-level logging
//	BASESTUB_DATABASE=":memory:"                    # embedded engine DSN
//
// Server settings:
//
//	BASESTUB_HOST="0.0.0.0"
//	BASESTUB_PORT="54321"
//	BASESTUB_HEALTH_PORT="9090"
//	BASESTUB_READ_TIMEOUT="15s"
//	BASESTUB_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	BASESTUB_STORAGE_BACKEND="memory"  # memory, s3, disabled
//	BASESTUB_S3_ENDPOINT="http://localhost:9000"  # no default
//	BASESTUB_S3_BUCKET="basestub"                 # no default; required for s3
//	BASESTUB_BLOB_CACHE_ENABLED="false"
//	BASESTUB_REDIS_URL="redis://localhost:6379/0" # no default; required when the cache is enabled
//
// Pooler settings:
//
//	BASESTUB_DEFAULT_TIMEOUT="30s"
//	BASESTUB_MAX_QUEUE_SIZE="1000"
//	BASESTUB_AGING_THRESHOLD="50ms"
//
// Observability settings:
//
//	BASESTUB_LOG_LEVEL="info"
//	BASESTUB_METRICS_ENABLED="true"
//	BASESTUB_OTEL_ENABLED="false"
//	BASESTUB_OTEL_ENDPOINT="localhost:4317"
//
// Values that cannot be environment variables — the passthrough
// handler and an injected blob backend instance — are wired
// programmatically in the composition root (cmd/basestub).
package config
