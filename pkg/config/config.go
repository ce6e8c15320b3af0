package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/fieldaudit/pkg/observability"
)

// ConfigFileEnv names the optional YAML file applied before environment overrides
const ConfigFileEnv = "FIELDAUDIT_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Audit         AuditConfig         `yaml:"audit"`
	Retention     RetentionConfig     `yaml:"retention"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// RoutePrefix is where the audit API is mounted
	RoutePrefix string `yaml:"route_prefix"`

	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects and tunes the audit store
type StorageConfig struct {
	// Driver is memory, postgres or sqlite
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RedisConfig holds the optional shared cache connection
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// Enabled reports whether a Redis URL is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// CacheConfig configures the statistics cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// AuditConfig configures the recorder write path and actor resolution
type AuditConfig struct {
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BreakerThreshold uint32        `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`

	// Identity headers set by the trusted upstream proxy
	ActorIDHeader    string `yaml:"actor_id_header"`
	ActorEmailHeader string `yaml:"actor_email_header"`
	ActorNameHeader  string `yaml:"actor_name_header"`
}

// RetentionConfig configures purging
type RetentionConfig struct {
	DefaultDays int `yaml:"default_days"`

	// Schedule is a cron expression used by the sweeper
	Schedule string `yaml:"schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			RoutePrefix:     "/api/audit",
		},
		Storage: StorageConfig{
			Driver:          "memory",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		Redis: RedisConfig{
			MaxRetries: 3,
			PoolSize:   10,
		},
		Cache: CacheConfig{
			Enabled: false,
			Size:    256,
			TTL:     30 * time.Second,
		},
		Audit: AuditConfig{
			WriteTimeout:     2 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			ActorIDHeader:    "X-User-ID",
			ActorEmailHeader: "X-User-Email",
			ActorNameHeader:  "X-User-Name",
		},
		Retention: RetentionConfig{
			DefaultDays: 90,
			Schedule:    "30 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "fieldaudit",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads defaults, then the YAML file named by
// FIELDAUDIT_CONFIG_FILE if set, then FIELDAUDIT_* environment overrides,
// and validates the result
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile reads a YAML file over the defaults without environment overrides
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from FIELDAUDIT_* variables. Unset or
// malformed variables keep the current value.
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("FIELDAUDIT_HOST", s.Host)
	s.Port = getEnv("FIELDAUDIT_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("FIELDAUDIT_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("FIELDAUDIT_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("FIELDAUDIT_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("FIELDAUDIT_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("FIELDAUDIT_HEALTH_PORT", s.HealthPort)
	s.RoutePrefix = getEnv("FIELDAUDIT_ROUTE_PREFIX", s.RoutePrefix)
	if origins := getEnv("FIELDAUDIT_CORS_ORIGINS", ""); origins != "" {
		s.CORSOrigins = splitList(origins)
	}

	st := &c.Storage
	st.Driver = getEnv("FIELDAUDIT_STORAGE_DRIVER", st.Driver)
	st.DSN = getEnv("FIELDAUDIT_STORAGE_DSN", st.DSN)
	st.MaxOpenConns = getEnvInt("FIELDAUDIT_STORAGE_MAX_OPEN_CONNS", st.MaxOpenConns)
	st.MaxIdleConns = getEnvInt("FIELDAUDIT_STORAGE_MAX_IDLE_CONNS", st.MaxIdleConns)
	st.ConnMaxLifetime = getEnvDuration("FIELDAUDIT_STORAGE_CONN_MAX_LIFETIME", st.ConnMaxLifetime)
	st.ConnectTimeout = getEnvDuration("FIELDAUDIT_STORAGE_TIMEOUT", st.ConnectTimeout)

	r := &c.Redis
	r.URL = getEnv("FIELDAUDIT_REDIS_URL", r.URL)
	r.Password = getEnv("FIELDAUDIT_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("FIELDAUDIT_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("FIELDAUDIT_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("FIELDAUDIT_REDIS_POOL_SIZE", r.PoolSize)

	ca := &c.Cache
	ca.Enabled = getEnvBool("FIELDAUDIT_CACHE_ENABLED", ca.Enabled)
	ca.Size = getEnvInt("FIELDAUDIT_CACHE_SIZE", ca.Size)
	ca.TTL = getEnvDuration("FIELDAUDIT_CACHE_TTL", ca.TTL)

	a := &c.Audit
	a.WriteTimeout = getEnvDuration("FIELDAUDIT_AUDIT_WRITE_TIMEOUT", a.WriteTimeout)
	a.BreakerThreshold = uint32(getEnvInt64("FIELDAUDIT_AUDIT_BREAKER_THRESHOLD", int64(a.BreakerThreshold)))
	a.BreakerCooldown = getEnvDuration("FIELDAUDIT_AUDIT_BREAKER_COOLDOWN", a.BreakerCooldown)
	a.ActorIDHeader = getEnv("FIELDAUDIT_ACTOR_ID_HEADER", a.ActorIDHeader)
	a.ActorEmailHeader = getEnv("FIELDAUDIT_ACTOR_EMAIL_HEADER", a.ActorEmailHeader)
	a.ActorNameHeader = getEnv("FIELDAUDIT_ACTOR_NAME_HEADER", a.ActorNameHeader)

	rt := &c.Retention
	rt.DefaultDays = getEnvInt("FIELDAUDIT_RETENTION_DAYS", rt.DefaultDays)
	rt.Schedule = getEnv("FIELDAUDIT_RETENTION_SCHEDULE", rt.Schedule)

	o := &c.Observability
	o.LogLevel = getEnv("FIELDAUDIT_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("FIELDAUDIT_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("FIELDAUDIT_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("FIELDAUDIT_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("FIELDAUDIT_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("FIELDAUDIT_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("FIELDAUDIT_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("FIELDAUDIT_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if !strings.HasPrefix(c.Server.RoutePrefix, "/") {
		return fmt.Errorf("route prefix must start with /: %q", c.Server.RoutePrefix)
	}

	// Validate storage config based on driver
	switch c.Storage.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage DSN is required for %s storage", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be memory, postgres, or sqlite)", c.Storage.Driver)
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive when the cache is enabled")
	}

	if c.Audit.WriteTimeout <= 0 {
		return fmt.Errorf("audit write timeout must be positive")
	}
	if c.Audit.ActorEmailHeader == "" {
		return fmt.Errorf("actor email header is required")
	}

	if c.Retention.DefaultDays < 7 {
		return fmt.Errorf("default retention must be at least 7 days, got %d", c.Retention.DefaultDays)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", r)
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
