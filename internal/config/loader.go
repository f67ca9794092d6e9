package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "skyfuse.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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
	setString(&cfg.Server.Port, "SKYFUSE_PORT")
	setString(&cfg.Server.CORSOrigin, "SKYFUSE_CORS_ORIGIN")
	setString(&cfg.Agent.ID, "SKYFUSE_AGENT_ID")
	setString(&cfg.Agent.Name, "SKYFUSE_AGENT_NAME")
	setString(&cfg.Agent.URL, "SKYFUSE_AGENT_URL")
	setString(&cfg.Agent.Version, "SKYFUSE_AGENT_VERSION")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SKYFUSE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SKYFUSE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SKYFUSE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SKYFUSE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SKYFUSE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setStringSlice(&cfg.Discovery.Endpoints, "SKYFUSE_DISCOVERY_ENDPOINTS")
	setDuration(&cfg.Discovery.Interval, "SKYFUSE_DISCOVERY_INTERVAL")
	setInt(&cfg.Discovery.FailureThreshold, "SKYFUSE_DISCOVERY_FAILURE_THRESHOLD")
	setDuration(&cfg.Discovery.ProbeTimeout, "SKYFUSE_DISCOVERY_PROBE_TIMEOUT")
	setDuration(&cfg.Router.DispatchTimeout, "SKYFUSE_DISPATCH_TIMEOUT")
	setInt(&cfg.Router.MaxFanout, "SKYFUSE_MAX_FANOUT")
	setDuration(&cfg.Router.ResponseTTL, "SKYFUSE_RESPONSE_TTL")
	setInt64(&cfg.Cache.MaxSizeMB, "SKYFUSE_CACHE_SIZE_MB")
	setString(&cfg.Notify.SigningKeyFile, "SKYFUSE_SIGNING_KEY_FILE")
	setDuration(&cfg.Notify.Timeout, "SKYFUSE_NOTIFY_TIMEOUT")
	setString(&cfg.Auth.AdminKeyHash, "SKYFUSE_ADMIN_KEY_HASH")
	setString(&cfg.Logging.Level, "SKYFUSE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SKYFUSE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "SKYFUSE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Cooldown, "SKYFUSE_BREAKER_COOLDOWN")
	setBool(&cfg.Otel.Enabled, "SKYFUSE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.MCP.Enabled, "SKYFUSE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "SKYFUSE_MCP_ADDR")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Discovery.Interval <= 0 {
		return errors.New("discovery.interval must be positive")
	}
	if cfg.Discovery.FailureThreshold < 1 {
		return errors.New("discovery.failure_threshold must be >= 1")
	}
	if cfg.Router.DispatchTimeout <= 0 {
		return errors.New("router.dispatch_timeout must be positive")
	}
	if cfg.Router.MaxFanout < 1 {
		return errors.New("router.max_fanout must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
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
