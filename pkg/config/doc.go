// Package config loads the search server configuration from environment
// variables with defaults for everything but the database URL.
//
// Server settings:
//
//	SITESEARCH_HOST="0.0.0.0"
//	SITESEARCH_PORT="8080"
//	SITESEARCH_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	SITESEARCH_POSTGRES_URL="postgres://localhost/site?sslmode=disable"
//	SITESEARCH_POSTGRES_REPLICA_URLS="postgres://replica1/site,postgres://replica2/site"
//	SITESEARCH_POSTGRES_MAX_CONNS="20"
//
// Search settings:
//
//	SITESEARCH_TABLE="sitewidesearch"
//	SITESEARCH_SCHEMA_FILE="/etc/sitesearch/schema.yaml"
//	SITESEARCH_PER_PAGE="10"
//	SITESEARCH_IMAGE_SIZE="medium"
//	SITESEARCH_HUMAN_DATES="false"  # "3 days ago" instead of timestamps
//	SITESEARCH_REBUILD_CONCURRENCY="4"
//	SITESEARCH_REBUILD_SCHEDULE="0 3 * * *"  # off-peak from-scratch rebuild
//
// Change notifications:
//
//	SITESEARCH_REDIS_URL="redis://localhost:6379/0"
//	SITESEARCH_REDIS_CHANNEL="sitesearch:documents"
//
// Observability settings:
//
//	SITESEARCH_LOG_LEVEL="info"  # debug, info, warn, error
//	SITESEARCH_METRICS_ENABLED="true"
//	SITESEARCH_OTEL_ENABLED="true"
//	SITESEARCH_OTEL_ENDPOINT="otel-collector:4317"
//	SITESEARCH_OTEL_SAMPLE_RATIO="0.1"
package config
