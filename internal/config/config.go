// Package config loads the application configuration from environment
// variables. Every entry point (local server, API Lambda, authorizer Lambda)
// reads the same struct; each uses the parts it needs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Secret drivers.
const (
	SecretsEnv            = "env"
	SecretsSecretsManager = "secretsmanager"
)

// Config is the whole application configuration.
type Config struct {
	Port     int    `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver      string `env:"STORE_DRIVER"      envDefault:"sqlite"`
	DBPath           string `env:"DB_PATH"           envDefault:"data/guestapp.db"`
	DBTable          string `env:"DB_TABLE"`
	AWSRegion        string `env:"AWS_REGION"        envDefault:"eu-central-1"`
	DynamoDBEndpoint string `env:"DYNAMODB_ENDPOINT"`

	SecretDriver         string        `env:"SECRET_DRIVER"           envDefault:"env"`
	JWTSecretName        string        `env:"JWT_SECRET_NAME"         envDefault:"guestapp-jwt-access"`
	JWTRefreshSecretName string        `env:"JWT_REFRESH_SECRET_NAME" envDefault:"guestapp-jwt-refresh"`
	JWTSecret            string        `env:"JWT_SECRET"`
	JWTRefreshSecret     string        `env:"JWT_REFRESH_SECRET"`
	SecretCacheTTL       time.Duration `env:"SECRET_CACHE_TTL"        envDefault:"5m"`

	// Token lifetimes in seconds.
	AccessTokenExpiration  int `env:"ACCESS_TOKEN_EXPIRATION"  envDefault:"600"`
	RefreshTokenExpiration int `env:"REFRESH_TOKEN_EXPIRATION" envDefault:"86400"`

	GoogleClientID    string `env:"GOOGLE_CLIENT_ID"`
	GoogleLegacyLogin bool   `env:"GOOGLE_LEGACY_LOGIN" envDefault:"false"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	EmitCookies       bool   `env:"EMIT_COOKIES"        envDefault:"false"`
	RefreshCookiePath string `env:"REFRESH_COOKIE_PATH" envDefault:"/auth/refresh"`

	TrustGatewayAuthorizer bool `env:"TRUST_GATEWAY_AUTHORIZER" envDefault:"false"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.CORSAllowedOrigins = trimCSV(cfg.CORSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	case StoreDynamoDB:
		if c.DBTable == "" {
			errs = append(errs, errors.New("DB_TABLE is required for the dynamodb store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of sqlite, dynamodb", c.StoreDriver))
	}

	switch c.SecretDriver {
	case SecretsEnv:
		if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required for the env secret driver"))
		} else if c.JWTSecret == c.JWTRefreshSecret {
			errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
		}
	case SecretsSecretsManager:
		if c.JWTSecretName == "" || c.JWTRefreshSecretName == "" {
			errs = append(errs, errors.New("JWT_SECRET_NAME and JWT_REFRESH_SECRET_NAME are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("SECRET_DRIVER %q is not one of env, secretsmanager", c.SecretDriver))
	}

	if c.JWTSecretName == c.JWTRefreshSecretName {
		errs = append(errs, errors.New("JWT_SECRET_NAME and JWT_REFRESH_SECRET_NAME must differ"))
	}
	if c.AccessTokenExpiration <= 0 || c.RefreshTokenExpiration <= 0 {
		errs = append(errs, errors.New("token expirations must be positive"))
	}
	if c.SecretCacheTTL < 0 {
		errs = append(errs, errors.New("SECRET_CACHE_TTL must not be negative"))
	}
	for _, o := range c.CORSAllowedOrigins {
		if o == "*" {
			errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must list origins, not *"))
		}
	}

	return errors.Join(errs...)
}

// AccessTTL is AccessTokenExpiration as a duration.
func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpiration) * time.Second
}

// RefreshTTL is RefreshTokenExpiration as a duration.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpiration) * time.Second
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// trimCSV drops blanks from a comma-split list.
func trimCSV(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
