package config

import (
	"errors"
	"strings"
	"time"
)

// Authoritative constants (spec §6). These are not overridable via environment
// variables — the original tool treats them as compiled-in behavior, not
// tunables, and so do we.
const (
	ConnectionTimeout               = 10 * time.Second
	AcquireTimeout                  = 10 * time.Second
	IdleTimeout                     = 10 * time.Second
	BusyRetry                       = 5 * time.Second
	HeartbeatInterval               = 30 * time.Second
	HeartbeatTimeout                = 15 * time.Minute
	HeartbeatUpdateTimeout          = 20 * time.Second
	HeartbeatMaxConsecutiveFailures = 3
	DeploymentIDLookupRetry         = 10 * time.Second
	DeploymentIDLookupTimeout       = 5 * time.Minute
	SlowQueryThreshold              = 500 * time.Millisecond
)

// ErrDatabaseURLEmpty is returned when DEPLOY_QUEUE_DATABASE_URL is unset or blank.
var ErrDatabaseURLEmpty = errors.New("DEPLOY_QUEUE_DATABASE_URL cannot be empty")

// Config holds the environment-derived configuration for the deploy-queue CLI.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        string
	SkipMigrations  bool
}

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = IdleTimeout
)

// Load reads the DEPLOY_QUEUE_* environment variables, falling back to
// production-ready defaults for the pool-tuning knobs that spec.md leaves
// unspecified.
func Load() *Config {
	return &Config{
		databaseURL:     GetEnvStr("DEPLOY_QUEUE_DATABASE_URL", ""),
		MaxOpenConns:    GetEnvInt("DEPLOY_QUEUE_DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    GetEnvInt("DEPLOY_QUEUE_DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: GetEnvDuration("DEPLOY_QUEUE_DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: GetEnvDuration("DEPLOY_QUEUE_DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		LogLevel:        GetEnvStr("DEPLOY_QUEUE_LOG_LEVEL", "info"),
	}
}

// DatabaseURL returns the configured store connection URL.
func (c *Config) DatabaseURL() string {
	return c.databaseURL
}

// Validate checks that the configuration has everything required to open a store.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns a copy of the configured URL with any password redacted,
// safe to place in log lines. Adapted verbatim from the storage package's
// connection-string masking logic.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(c.databaseURL, "://")
	if schemeEnd == -1 {
		return c.databaseURL
	}

	afterScheme := c.databaseURL[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		return c.databaseURL
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		return c.databaseURL
	}

	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		return c.databaseURL
	}

	scheme := c.databaseURL[:schemeEnd]
	hostAndRest := afterScheme[lastAtIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}
