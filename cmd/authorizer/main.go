// Command authorizer is the API Gateway REQUEST authorizer Lambda. It needs
// only the secret settings from internal/config; the store is never opened.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/flycalcio/guestapp/internal/authorizer"
	"github.com/flycalcio/guestapp/internal/config"
	"github.com/flycalcio/guestapp/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	store, err := server.OpenSecrets(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open secret store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	a := authorizer.New(server.NewTokenService(cfg, store), logger)
	lambda.Start(a.Handle)
}
