// Command server runs the API as a plain HTTP server for local development.
//
// Configuration comes from the environment (see internal/config). The
// defaults give a SQLite store under data/ and secrets from JWT_SECRET and
// JWT_REFRESH_SECRET, so a local run needs just those two:
//
//	JWT_SECRET=$(openssl rand -hex 32) JWT_REFRESH_SECRET=$(openssl rand -hex 32) go run ./cmd/server
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/flycalcio/guestapp/internal/config"
	"github.com/flycalcio/guestapp/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	deps, err := server.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := server.New(cfg, deps, logger).Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
