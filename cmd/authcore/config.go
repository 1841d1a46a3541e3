package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mkosyakov/authcore/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultIssuer          = "authcore"
	defaultAudience        = "authcore-clients"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour

	// Short on purpose: role and permission changes must propagate fast
	defaultUserCacheTTL = 5 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the auth service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis for the revocation cache and user row cache
	RedisURL string

	// Secret key signing access tokens, symmetric
	SecretKey string

	// Fixed issuer and audience claims
	Issuer   string
	Audience string

	// Token and cache lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	UserCacheTTL    time.Duration

	// Demo bearer value. Empty disables the sandbox bypass, which is the
	// only safe setting outside an explicit demo deployment.
	DemoToken string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		Environment:     defaultEnvironment,
		ListenAddr:      defaultListenAddr,
		Issuer:          defaultIssuer,
		Audience:        defaultAudience,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		UserCacheTTL:    defaultUserCacheTTL,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("bad duration %q: %w", value, err)
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"REDIS_URL":         setString(&c.RedisURL),
		"SECRET_KEY":        setString(&c.SecretKey),
		"TOKEN_ISSUER":      setString(&c.Issuer),
		"TOKEN_AUDIENCE":    setString(&c.Audience),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTokenTTL),
		"USER_CACHE_TTL":    setDuration(&c.UserCacheTTL),
		"DEMO_TOKEN":        setString(&c.DemoToken),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authcore", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "Redis connection URL")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVar(&c.Issuer, "issuer", c.Issuer, "Token issuer claim")
	fs.StringVar(&c.Audience, "audience", c.Audience, "Token audience claim")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.DurationVar(&c.UserCacheTTL, "user-cache-ttl", c.UserCacheTTL, "Cached user row lifetime")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Validate checks the settings the service cannot start without. Tokens
// are only as trustworthy as this configuration, so it fails loudly.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("secret key is required")
	}
	if c.DatabaseDSN == "" {
		return errors.New("database DSN is required")
	}
	if c.RedisURL == "" {
		return errors.New("redis URL is required")
	}
	if c.Issuer == "" || c.Audience == "" {
		return errors.New("token issuer and audience are required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.UserCacheTTL <= 0 {
		return errors.New("token and cache TTLs must be positive")
	}
	if c.DemoToken != "" && c.Environment == logger.EnvProduction {
		return errors.New("demo token must not be set in production")
	}
	return nil
}
