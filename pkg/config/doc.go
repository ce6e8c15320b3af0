// Package config loads fieldaudit configuration from defaults, an optional
// YAML file and environment variables, in that order.
//
// # Configuration Structure
//
// File (FIELDAUDIT_CONFIG_FILE):
//
//	server:
//	  port: "8080"
//	  route_prefix: /api/audit
//	storage:
//	  driver: postgres   # memory, postgres, sqlite
//	  dsn: postgres://localhost/fieldaudit?sslmode=disable
//	retention:
//	  default_days: 90
//	  schedule: "30 3 * * *"
//
// Server settings:
//
//	FIELDAUDIT_HOST="0.0.0.0"
//	FIELDAUDIT_PORT="8080"
//	FIELDAUDIT_HEALTH_PORT="9090"
//	FIELDAUDIT_ROUTE_PREFIX="/api/audit"
//	FIELDAUDIT_CORS_ORIGINS="https://app.example.com"
//
// Storage settings:
//
//	FIELDAUDIT_STORAGE_DRIVER="sqlite"
//	FIELDAUDIT_STORAGE_DSN="file:/var/lib/fieldaudit/audit.db"
//	FIELDAUDIT_STORAGE_MAX_OPEN_CONNS="20"
//
// Cache settings:
//
//	FIELDAUDIT_CACHE_ENABLED="true"
//	FIELDAUDIT_CACHE_TTL="30s"
//	FIELDAUDIT_REDIS_URL="redis://localhost:6379"
//
// Recorder settings:
//
//	FIELDAUDIT_AUDIT_WRITE_TIMEOUT="2s"
//	FIELDAUDIT_AUDIT_BREAKER_THRESHOLD="5"
//	FIELDAUDIT_ACTOR_EMAIL_HEADER="X-User-Email"
//
// Observability settings:
//
//	FIELDAUDIT_LOG_LEVEL="info"  # debug, info, warn, error
//	FIELDAUDIT_METRICS_ENABLED="true"
//	FIELDAUDIT_OTEL_ENABLED="true"
//	FIELDAUDIT_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	go config.Watch(ctx, os.Getenv(config.ConfigFileEnv), func(c *config.Config) {
//		logger.SetLevel(c.Observability.Level())
//	}, nil)
package config
