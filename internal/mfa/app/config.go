package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ReplayMemory = "memory"
	ReplayRedis  = "redis"
)

type Config struct {
	Issuer              string        // Optional: expected iss claim (default: bartab-auth)
	Audience            []string      // Optional: expected aud values, comma separated
	JWKSURL             string        // JWKS endpoint of the auth service
	JWKSRefreshInterval time.Duration // Optional: background JWKS refresh (default: 5m)

	DatabaseDriver string // sqlite, postgres or memory (default: sqlite)
	DatabaseFile   string // SQLite file (default: ./mfa.db)
	DatabaseURL    string // Postgres connection URL, required for postgres

	ReplayBackend string // memory or redis (default: memory)
	RedisAddr     string // Required for redis
	RedisPassword string
	RedisDB       int

	TOTPPeriod   int           // Seconds per step (default: 30)
	TOTPDigits   int           // 6 or 8 (default: 6)
	TOTPSkew     int           // Steps tolerated either side (default: 1)
	StoreTimeout time.Duration // Bound on each store call (default: 3s)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	SweepInterval       time.Duration // Replay guard sweep interval (default: 1m)
}

func LoadConfig() Config {
	return Config{
		Issuer:              getEnvOrDefault("MFA_ISSUER", "bartab-auth"),
		Audience:            splitList(os.Getenv("MFA_AUDIENCE")),
		JWKSURL:             getEnvOrDefault("MFA_JWKS_URL", "http://localhost:8080/.well-known/jwks.json"),
		JWKSRefreshInterval: getEnvDurationOrDefault("MFA_JWKS_REFRESH_INTERVAL", 5*time.Minute),

		DatabaseDriver: strings.ToLower(getEnvOrDefault("MFA_DATABASE_DRIVER", DriverSQLite)),
		DatabaseFile:   getEnvOrDefault("MFA_DATABASE_FILE", "mfa.db"),
		DatabaseURL:    os.Getenv("MFA_DATABASE_URL"),

		ReplayBackend: strings.ToLower(getEnvOrDefault("MFA_REPLAY_BACKEND", ReplayMemory)),
		RedisAddr:     os.Getenv("MFA_REDIS_ADDR"),
		RedisPassword: os.Getenv("MFA_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("MFA_REDIS_DB", 0),

		TOTPPeriod:   getEnvIntOrDefault("MFA_TOTP_PERIOD", 30),
		TOTPDigits:   getEnvIntOrDefault("MFA_TOTP_DIGITS", 6),
		TOTPSkew:     getEnvIntOrDefault("MFA_TOTP_SKEW", 1),
		StoreTimeout: getEnvDurationOrDefault("MFA_STORE_TIMEOUT", 3*time.Second),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		SweepInterval:       getEnvDurationOrDefault("REPLAY_SWEEP_INTERVAL", time.Minute),
	}
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("MFA_DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MFA_DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	switch c.ReplayBackend {
	case ReplayMemory:
	case ReplayRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("MFA_REDIS_ADDR is required for the redis replay backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MFA_REPLAY_BACKEND %q", c.ReplayBackend))
	}

	if c.TOTPDigits != 6 && c.TOTPDigits != 8 {
		errs = append(errs, fmt.Errorf("MFA_TOTP_DIGITS must be 6 or 8, got %d", c.TOTPDigits))
	}
	if c.TOTPPeriod <= 0 {
		errs = append(errs, fmt.Errorf("MFA_TOTP_PERIOD must be positive, got %d", c.TOTPPeriod))
	}
	if c.TOTPSkew < 0 {
		errs = append(errs, fmt.Errorf("MFA_TOTP_SKEW must not be negative, got %d", c.TOTPSkew))
	}
	if c.JWKSURL == "" {
		errs = append(errs, errors.New("MFA_JWKS_URL is required"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
