package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "releaseforge.yaml"

// CLIFlags holds values set on the command line. Nil fields were not given
// and leave the lower layers untouched.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	Store      *string
	BaseURL    *string
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	return load(yamlPath, CLIFlags{})
}

// LoadWithCLI applies the full hierarchy including CLI flags and returns the
// config together with the YAML path that was consulted.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil && *flags.ConfigPath != "" {
		path = *flags.ConfigPath
	}
	cfg, err := load(path, flags)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func load(yamlPath string, flags CLIFlags) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RELEASEFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "RELEASEFORGE_CORS_ORIGIN")
	setDuration(&cfg.Server.ShutdownTimeout, "RELEASEFORGE_SHUTDOWN_TIMEOUT")
	setString(&cfg.Store.Backend, "RELEASEFORGE_STORE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RELEASEFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RELEASEFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RELEASEFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RELEASEFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RELEASEFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Prefix, "RELEASEFORGE_REDIS_PREFIX")
	setString(&cfg.Logging.Level, "RELEASEFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RELEASEFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RELEASEFORGE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "RELEASEFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RELEASEFORGE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "RELEASEFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "RELEASEFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "RELEASEFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "RELEASEFORGE_RATE_MAX_IDLE_TIME")

	// Retry
	setInt(&cfg.Retry.MaxAttempts, "RELEASEFORGE_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.ConflictBase, "RELEASEFORGE_RETRY_CONFLICT_BASE")
	setDuration(&cfg.Retry.ConflictCap, "RELEASEFORGE_RETRY_CONFLICT_CAP")
	setDuration(&cfg.Retry.RateLimitBase, "RELEASEFORGE_RETRY_RATE_LIMIT_BASE")
	setDuration(&cfg.Retry.RateLimitCap, "RELEASEFORGE_RETRY_RATE_LIMIT_CAP")
	setDuration(&cfg.Retry.DefaultBase, "RELEASEFORGE_RETRY_DEFAULT_BASE")
	setDuration(&cfg.Retry.DefaultCap, "RELEASEFORGE_RETRY_DEFAULT_CAP")

	// Orchestrator
	setInt(&cfg.Orchestrator.MaxParallel, "RELEASEFORGE_ORCH_MAX_PARALLEL")
	setBool(&cfg.Orchestrator.PreflightCheck, "RELEASEFORGE_ORCH_PREFLIGHT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "RELEASEFORGE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "RELEASEFORGE_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Backend, "RELEASEFORGE_CACHE_L2_BACKEND")
	setString(&cfg.Cache.L2Bucket, "RELEASEFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "RELEASEFORGE_CACHE_L2_TTL")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "RELEASEFORGE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "RELEASEFORGE_IDEMPOTENCY_TTL")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "RELEASEFORGE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "RELEASEFORGE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "RELEASEFORGE_OTEL_SAMPLE_RATE")

	// Client
	setString(&cfg.Client.BaseURL, "RELEASEFORGE_API_URL")
	setDuration(&cfg.Client.Timeout, "RELEASEFORGE_CLIENT_TIMEOUT")
}

// applyCLI overlays explicitly set command line flags onto cfg.
func applyCLI(cfg *Config, f CLIFlags) {
	if f.Port != nil {
		cfg.Server.Port = *f.Port
	}
	if f.LogLevel != nil {
		cfg.Logging.Level = *f.LogLevel
	}
	if f.DSN != nil {
		cfg.Postgres.DSN = *f.DSN
	}
	if f.NatsURL != nil {
		cfg.NATS.URL = *f.NatsURL
	}
	if f.Store != nil {
		cfg.Store.Backend = *f.Store
	}
	if f.BaseURL != nil {
		cfg.Client.BaseURL = *f.BaseURL
	}
}

// validate checks that required fields are set and values are usable.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend must be postgres or memory, got %q", cfg.Store.Backend)
	}
	switch cfg.Cache.L2Backend {
	case "none":
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("cache.l2_backend nats requires nats.url")
		}
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("cache.l2_backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("cache.l2_backend must be nats, redis or none, got %q", cfg.Cache.L2Backend)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if cfg.Retry.ConflictCap < cfg.Retry.ConflictBase ||
		cfg.Retry.RateLimitCap < cfg.Retry.RateLimitBase ||
		cfg.Retry.DefaultCap < cfg.Retry.DefaultBase {
		return errors.New("retry caps must not be below their base delays")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
