package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinSecretLength is the shortest HMAC key accepted for token signing.
const MinSecretLength = 32

// DevJWTSecret is the signing key used when AUTH_JWT_SECRET is unset in the
// development environment. Any other environment rejects it.
const DevJWTSecret = "dev-secret-change-me-0123456789abcdef"

// EnvDevelopment is the only APP_ENV that may run with DevJWTSecret.
const EnvDevelopment = "development"

// Supported user store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	UserStore UserStoreConfig
	Postgres  PostgresConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// UserStoreConfig selects the user persistence backend.
type UserStoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path          string
	RunMigrations bool
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret                 string
	TokenTTLSeconds           int
	BcryptCost                int
	RevocationEnabled         bool
	RevocationLookupTimeoutMs int
	OpenAdminRegistration     bool
}

// RateLimitConfig throttles credential endpoints per client.
type RateLimitConfig struct {
	LoginRequestsPerMinute    int
	LoginBurst                int
	RegisterRequestsPerMinute int
	RegisterBurst             int
}

// Load reads configuration from environment variables, applying defaults where possible.
// When CONFIG_FILE names a YAML file of KEY: value pairs, those values are used
// for keys missing from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	src := envSource{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	return load(src)
}

func load(src envSource) (*Config, error) {
	redisDB, err := strconv.Atoi(src.get("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	env := strings.ToLower(src.get("APP_ENV", EnvDevelopment))
	defaultSecret := ""
	if env == EnvDevelopment {
		defaultSecret = DevJWTSecret
	}

	dsn := src.get("POSTGRES_DSN", "")
	defaultDriver := DriverSQLite
	if dsn != "" {
		defaultDriver = DriverPostgres
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  src.get("APP_NAME", "auth-service"),
			Env:                   env,
			Host:                  src.get("APP_HOST", "0.0.0.0"),
			Port:                  src.get("APP_PORT", "8080"),
			Version:               src.get("APP_VERSION", "dev"),
			RequestTimeoutSeconds: src.getInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		UserStore: UserStoreConfig{
			Driver: strings.ToLower(src.get("USER_STORE_DRIVER", defaultDriver)),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(src.getInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(src.getInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  src.getBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(src.getInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(src.getInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path:          src.get("SQLITE_PATH", "auth.db"),
			RunMigrations: src.getBool("SQLITE_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Addr:     src.get("REDIS_ADDR", "127.0.0.1:6379"),
			Password: src.get("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: src.get("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:                 src.get("AUTH_JWT_SECRET", defaultSecret),
			TokenTTLSeconds:           src.getInt("AUTH_TOKEN_TTL_SECONDS", 3600),
			BcryptCost:                src.getInt("AUTH_BCRYPT_COST", 12),
			RevocationEnabled:         src.getBool("AUTH_REVOCATION_ENABLED", true),
			RevocationLookupTimeoutMs: src.getInt("AUTH_REVOCATION_LOOKUP_TIMEOUT_MS", 250),
			OpenAdminRegistration:     src.getBool("AUTH_OPEN_ADMIN_REGISTRATION", true),
		},
		RateLimit: RateLimitConfig{
			LoginRequestsPerMinute:    src.getInt("RATELIMIT_LOGIN_REQUESTS_PER_MINUTE", 5),
			LoginBurst:                src.getInt("RATELIMIT_LOGIN_BURST", 5),
			RegisterRequestsPerMinute: src.getInt("RATELIMIT_REGISTER_REQUESTS_PER_MINUTE", 5),
			RegisterBurst:             src.getInt("RATELIMIT_REGISTER_BURST", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch {
	case c.Auth.JWTSecret == "":
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	case len(c.Auth.JWTSecret) < MinSecretLength:
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", MinSecretLength))
	case c.Auth.JWTSecret == DevJWTSecret && c.App.Env != EnvDevelopment:
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must not be the development default when APP_ENV=%s", c.App.Env))
	}
	if c.Auth.TokenTTLSeconds <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL_SECONDS must be positive"))
	}
	switch c.UserStore.Driver {
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres user store"))
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite user store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown USER_STORE_DRIVER %q", c.UserStore.Driver))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLSeconds) * time.Second
}

// RevocationLookupTimeout bounds the session store round trip during authorization.
func (a AuthConfig) RevocationLookupTimeout() time.Duration {
	if a.RevocationLookupTimeoutMs <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(a.RevocationLookupTimeoutMs) * time.Millisecond
}

// envSource resolves keys from the process environment first, then from the
// optional config file.
type envSource struct {
	file map[string]string
}

func readConfigFile(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for key, val := range raw {
		if val == nil {
			continue
		}
		values[key] = fmt.Sprint(val)
	}
	return values, nil
}

func (s envSource) get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val, ok := s.file[key]; ok && val != "" {
		return val
	}
	return fallback
}

func (s envSource) getInt(key string, fallback int) int {
	val := s.get(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s envSource) getBool(key string, fallback bool) bool {
	val := s.get(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
