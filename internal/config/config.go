package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	devAccessSecret  = "dev-access-secret-change-me"
	devRefreshSecret = "dev-refresh-secret-change-me"
)

// Store adapters.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
)

// Google ID token verifiers.
const (
	VerifierIDToken = "idtoken"
	VerifierOIDC    = "oidc"
)

// TTL is a token lifetime. It accepts Go durations, a "d" suffix for days and
// bare integers as seconds.
type TTL time.Duration

func (t *TTL) UnmarshalText(text []byte) error {
	d, err := ParseTTL(string(text))
	if err != nil {
		return err
	}
	*t = TTL(d)
	return nil
}

func (t TTL) Duration() time.Duration { return time.Duration(t) }

// ParseTTL parses "15m", "7d", "1d12h" or "900".
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	var days time.Duration
	if i := strings.Index(s, "d"); i > 0 {
		n, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		days = time.Duration(n) * 24 * time.Hour
		s = s[i+1:]
		if s == "" {
			return days, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return days + d, nil
}

type Config struct {
	Port     string `env:"PORT" envDefault:"3001"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AccessSecret  string `env:"JWT_ACCESS_SECRET" envDefault:"dev-access-secret-change-me"`
	RefreshSecret string `env:"JWT_REFRESH_SECRET" envDefault:"dev-refresh-secret-change-me"`
	AccessTTL     TTL    `env:"JWT_ACCESS_EXPIRES_IN" envDefault:"15m"`
	RefreshTTL    TTL    `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"7d"`
	Issuer        string `env:"JWT_ISSUER" envDefault:"googleauth"`

	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`
	GoogleVerifier string `env:"GOOGLE_VERIFIER" envDefault:"idtoken"`

	CORSOrigin         string `env:"CORS_ORIGIN" envDefault:"http://localhost:5173"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	StoreAdapter string `env:"STORE_ADAPTER" envDefault:"memory"`
	SQLiteFile   string `env:"SQLITE_FILE" envDefault:"./data/users.db"`

	// PostgreSQL connection settings
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"googleauth"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"googleauth"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"./migrations"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"googleauth"`
}

// Production reports whether APP_ENV selects production mode.
func (c *Config) Production() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "production" || env == "prod"
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable" // Default to disable for local development
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}

	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.Production() && (c.AccessSecret == devAccessSecret || c.RefreshSecret == devRefreshSecret) {
		return errors.New("JWT secrets must be set in production")
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("JWT_REFRESH_EXPIRES_IN must be longer than JWT_ACCESS_EXPIRES_IN")
	}

	if c.GoogleClientID == "" {
		return errors.New("GOOGLE_CLIENT_ID must be set")
	}
	switch c.GoogleVerifier {
	case VerifierIDToken, VerifierOIDC:
	default:
		return fmt.Errorf("unknown GOOGLE_VERIFIER: %s", c.GoogleVerifier)
	}

	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}

	switch c.StoreAdapter {
	case StoreMemory, StoreRedis, StoreMongo:
	case StoreSQLite:
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when STORE_ADAPTER=sqlite")
		}
	case StorePostgres:
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	default:
		return fmt.Errorf("unknown STORE_ADAPTER: %s", c.StoreAdapter)
	}
	return nil
}

// Load parses the environment without validating it. Tools that only need
// the database settings use it directly.
func Load() (*Config, error) {
	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return c, nil
}

// New loads the configuration from the environment and validates it.
func New() (*Config, error) {
	c, err := Load()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
