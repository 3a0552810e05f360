// Command lambda serves the API from AWS Lambda behind an API Gateway REST
// API (proxy integration, payload v1).
//
// The same router as cmd/server runs unchanged: the proxy adapter turns each
// API Gateway event into an *http.Request and the response back into an
// event. Dependencies are built once per cold start and reused across
// invocations.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/flycalcio/guestapp/internal/config"
	"github.com/flycalcio/guestapp/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// CloudWatch indexes JSON fields.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	deps, err := server.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := server.New(cfg, deps, logger)
	adapter := httpadapter.New(srv.Handler())

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
