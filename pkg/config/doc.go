// Package config loads gatekeeper configuration from environment variables,
// with an optional YAML file for provider settings.
//
// # Configuration Structure
//
// Server (health and metrics endpoints only):
//
//	GATEKEEPER_HOST="0.0.0.0"
//	GATEKEEPER_HEALTH_PORT="9090"
//	GATEKEEPER_SHUTDOWN_TIMEOUT="30s"
//
// Store:
//
//	GATEKEEPER_STORE="postgres"  # postgres, memory
//	GATEKEEPER_DATABASE_URL="postgres://localhost/gatekeeper?sslmode=disable"
//	GATEKEEPER_DATABASE_MAX_CONNS="20"
//	GATEKEEPER_DATABASE_AUTO_MIGRATE="true"
//
// Identity provider:
//
//	GATEKEEPER_PROVIDER="supabase"  # supabase, oidc
//	GATEKEEPER_PROVIDER_TIMEOUT="10s"
//	GATEKEEPER_PROVIDER_SETTING_API_URL="https://project.supabase.co"
//	GATEKEEPER_PROVIDER_SETTING_SECRET_KEY="..."
//
// Every GATEKEEPER_PROVIDER_SETTING_<KEY> becomes the lowercased settings key.
//
// Sessions and cache:
//
//	GATEKEEPER_SESSION_TTL="1h"
//	GATEKEEPER_SESSION_PURGE_SCHEDULE="@every 15m"
//	GATEKEEPER_SESSION_PURGE_RETENTION="168h"
//	GATEKEEPER_CACHE="memory"  # none, memory, redis
//	GATEKEEPER_CACHE_TTL="1m"
//	GATEKEEPER_REDIS_URL="redis://localhost:6379/0"
//
// Observability:
//
//	GATEKEEPER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEKEEPER_METRICS_ENABLED="true"
//	GATEKEEPER_OTEL_ENABLED="false"
//	GATEKEEPER_OTEL_ENDPOINT="otel-collector:4317"
//	GATEKEEPER_OTEL_SAMPLE_RATIO="1.0"
//
// # Overlay file
//
// GATEKEEPER_CONFIG_FILE names a YAML file:
//
//	provider:
//	  name: oidc
//	  timeout: 5s
//	  settings:
//	    issuer_url: https://accounts.example.com
//	    client_id: gatekeeper
//
// Environment variables take precedence over the file.
package config
