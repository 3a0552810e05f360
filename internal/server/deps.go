package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/config"
	"github.com/flycalcio/guestapp/internal/notify"
	"github.com/flycalcio/guestapp/internal/repository"
	"github.com/flycalcio/guestapp/internal/repository/dynamo"
	sqliteRepo "github.com/flycalcio/guestapp/internal/repository/sqlite"
	"github.com/flycalcio/guestapp/internal/secrets"
)

// Deps are the external collaborators a Server is built from. Open builds
// them from configuration; tests build them by hand.
type Deps struct {
	Store   repository.Store
	Secrets secrets.Store

	// Identities verifies Google ID tokens. Nil disables /auth/google
	// (every call is answered with an error).
	Identities auth.IdentityVerifier

	// Notifier sends the welcome message. Nil means log only.
	Notifier notify.Notifier
}

// Open connects to everything cfg names.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Deps, error) {
	var deps Deps

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return Deps{}, err
	}
	deps.Store = store

	deps.Secrets, err = OpenSecrets(ctx, cfg)
	if err != nil {
		store.Close()
		return Deps{}, err
	}

	if cfg.GoogleClientID != "" {
		deps.Identities = auth.NewGoogleVerifier(ctx, cfg.GoogleClientID)
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set, Google login is disabled")
	}

	deps.Notifier = notify.NewLogNotifier(logger)
	return deps, nil
}

// OpenStore opens the store STORE_DRIVER selects.
func OpenStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDynamoDB:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDBEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
			}
		})
		return dynamo.New(client, cfg.DBTable), nil

	default:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// OpenSecrets returns the secret store SECRET_DRIVER selects. The env
// driver serves JWT_SECRET and JWT_REFRESH_SECRET under their secret names.
func OpenSecrets(ctx context.Context, cfg config.Config) (secrets.Store, error) {
	switch cfg.SecretDriver {
	case config.SecretsSecretsManager:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return secrets.NewSecretsManager(secretsmanager.NewFromConfig(awsCfg)), nil

	default:
		return secrets.Static{
			cfg.JWTSecretName:        []byte(cfg.JWTSecret),
			cfg.JWTRefreshSecretName: []byte(cfg.JWTRefreshSecret),
		}, nil
	}
}

// NewTokenService builds the token service the API and the authorizer
// share. Secrets are cached for SECRET_CACHE_TTL.
func NewTokenService(cfg config.Config, store secrets.Store) *auth.TokenService {
	return auth.NewTokenService(secrets.NewCache(store, cfg.SecretCacheTTL), auth.TokenConfig{
		AccessSecretName:  cfg.JWTSecretName,
		RefreshSecretName: cfg.JWTRefreshSecretName,
		AccessTTL:         cfg.AccessTTL(),
		RefreshTTL:        cfg.RefreshTTL(),
	})
}

// loadAWSConfig loads the default credential chain for the configured
// region. With DYNAMODB_ENDPOINT set (DynamoDB Local) any static
// credentials do, so none need to be configured.
func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.DynamoDBEndpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}
