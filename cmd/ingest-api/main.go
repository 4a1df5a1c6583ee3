// Package main is the entry point for the RelayPoint ingest API.
//
// The ingest API is the front door for domain events: the commerce platform
// posts EventMessage envelopes to /v1/events, Stripe posts payment webhooks
// to /v1/stripe/webhook, and the rule configuration UI reads the trigger
// catalog from /v1/triggers. Accepted events are published to the SQS event
// queue; the notify worker does the matching and delivery.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"relaypoint/internal/api"
	"relaypoint/internal/config"
	"relaypoint/internal/producers"
	"relaypoint/internal/queue"
	"relaypoint/internal/registry"
	"relaypoint/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info/Warn/Error but With returns *slog.Logger, not
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	slogger := newLogger(cfg.LogLevel)
	logger := &slogAdapter{logger: slogger}
	logger.Info("relaypoint ingest API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	// Build the trigger catalog. The ingest API only reads it (trigger
	// validation and the catalog endpoint); vetoes and context builders are
	// registered too but exercised only by the worker.
	builder := registry.NewBuilder()
	producers.RegisterAll(builder)
	reg := builder.Build()

	// AWS clients for the event queue.
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.EndpointURL != "" {
		// LocalStack / integration environments.
		awsOpts = append(awsOpts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	publisher := queue.NewEventPublisher(
		sqs.NewFromConfig(awsCfg),
		cfg.AWS.EventQueue,
		logger,
		types.RealClock{},
	)

	deps := api.RouterDeps{
		Events: api.NewEventsHandler(publisher, reg, cfg.Ingest.MaxBodyBytes, logger),
		Logger: logger,
	}
	if cfg.Ingest.StripeWebhookSecret.Unmask() != "" {
		deps.Stripe = api.NewStripeWebhookHandler(
			&producers.StripeVerifier{},
			publisher,
			cfg.Ingest.StripeWebhookSecret,
			cfg.Ingest.MaxBodyBytes,
			logger,
		)
		logger.Info("stripe webhook endpoint enabled")
	}

	return runHTTPServer(api.NewRouter(deps), cfg, logger)
}

// runHTTPServer starts the server with graceful shutdown on SIGINT/SIGTERM.
func runHTTPServer(handler http.Handler, cfg *config.Config, logger types.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err.Error())
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
