package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SecretBackend names a secretstore implementation.
type SecretBackend string

const (
	BackendMemory   SecretBackend = "memory"
	BackendFile     SecretBackend = "file"
	BackendSQLite   SecretBackend = "sqlite"
	BackendMySQL    SecretBackend = "mysql"
	BackendPostgres SecretBackend = "postgres"
	BackendRedis    SecretBackend = "redis"
)

// Config holds the admin client configuration.
type Config struct {
	Env      string
	LogLevel string

	// BaseURL is the UR Shop backend root, e.g. https://api.urshop.example
	BaseURL string

	// Timeout bounds every HTTP call, including token refresh.
	Timeout time.Duration

	// PageSize is the page length requested by list screens.
	PageSize int

	// StaleTime is how long a cached query result is served without refetching.
	StaleTime time.Duration

	// GCTime is how long an unused cache entry survives a sweep.
	GCTime time.Duration

	Secrets SecretsConfig
}

// SecretsConfig selects and configures the token mirror.
type SecretsConfig struct {
	Backend SecretBackend

	// Path is the file for the file and sqlite backends.
	Path string

	// Passphrase seals the file backend.
	Passphrase string

	// DSN is the connection string for mysql and postgres.
	DSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KeyPrefix namespaces keys in shared backends (redis).
	KeyPrefix string
}

// MockConfig configures the mockshop backend.
type MockConfig struct {
	Env        string
	LogLevel   string
	Addr       string
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

const defaultMockSecret = "mockshop-dev-secret"

// Env returns the value of k, or def when unset or empty.
func Env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads the admin client configuration from the environment.
func Load() (Config, error) {
	var errs []error

	cfg := Config{
		Env:       Env("ENV", ""),
		LogLevel:  Env("URSHOP_LOG_LEVEL", "info"),
		BaseURL:   Env("URSHOP_BASE_URL", "http://localhost:8081"),
		Timeout:   envDuration("URSHOP_TIMEOUT", 30*time.Second, &errs),
		PageSize:  envInt("URSHOP_PAGE_SIZE", 20, &errs),
		StaleTime: envDuration("URSHOP_STALE_TIME", 30*time.Second, &errs),
		GCTime:    envDuration("URSHOP_GC_TIME", 5*time.Minute, &errs),
		Secrets: SecretsConfig{
			Backend:       SecretBackend(Env("URSHOP_SECRET_BACKEND", string(BackendFile))),
			Path:          Env("URSHOP_SECRET_PATH", defaultSecretPath()),
			Passphrase:    Env("URSHOP_SECRET_PASSPHRASE", ""),
			DSN:           Env("URSHOP_SECRET_DSN", ""),
			RedisAddr:     Env("URSHOP_REDIS_ADDR", "localhost:6379"),
			RedisPassword: Env("URSHOP_REDIS_PASSWORD", ""),
			RedisDB:       envInt("URSHOP_REDIS_DB", 0, &errs),
			KeyPrefix:     Env("URSHOP_SECRET_PREFIX", "urshop:secrets:"),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("URSHOP_BASE_URL is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("URSHOP_TIMEOUT must be positive"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("URSHOP_PAGE_SIZE must be positive"))
	}

	switch c.Secrets.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Secrets.Passphrase == "" {
			errs = append(errs, errors.New("URSHOP_SECRET_PASSPHRASE is required for the file secret backend"))
		}
		if c.Secrets.Path == "" {
			errs = append(errs, errors.New("URSHOP_SECRET_PATH is required for the file secret backend"))
		}
	case BackendSQLite:
		if c.Secrets.Path == "" {
			errs = append(errs, errors.New("URSHOP_SECRET_PATH is required for the sqlite secret backend"))
		}
	case BackendMySQL, BackendPostgres:
		if c.Secrets.DSN == "" {
			errs = append(errs, fmt.Errorf("URSHOP_SECRET_DSN is required for the %s secret backend", c.Secrets.Backend))
		}
	case BackendRedis:
		if c.Secrets.RedisAddr == "" {
			errs = append(errs, errors.New("URSHOP_REDIS_ADDR is required for the redis secret backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown secret backend %q", c.Secrets.Backend))
	}

	return errors.Join(errs...)
}

// IsDev reports whether pretty console logging was requested.
func (c Config) IsDev() bool { return c.Env == "dev" }

// LoadMock reads the mockshop configuration from the environment.
func LoadMock() (MockConfig, error) {
	var errs []error
	cfg := MockConfig{
		Env:        Env("ENV", ""),
		LogLevel:   Env("MOCKSHOP_LOG_LEVEL", "info"),
		Addr:       Env("MOCKSHOP_ADDR", ":8081"),
		JWTSecret:  Env("MOCKSHOP_JWT_SECRET", defaultMockSecret),
		AccessTTL:  envDuration("MOCKSHOP_ACCESS_TTL", 15*time.Minute, &errs),
		RefreshTTL: envDuration("MOCKSHOP_REFRESH_TTL", 7*24*time.Hour, &errs),
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultMockSecret {
		errs = append(errs, errors.New("MOCKSHOP_JWT_SECRET must be set outside ENV=dev"))
	}
	return cfg, errors.Join(errs...)
}

func envDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func envInt(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func defaultSecretPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "urshop-admin", "secrets")
}
