// Package main is the entrypoint for the Notify Worker Lambda function.
//
// The Notify Worker consumes event envelopes from the SQS event queue and
// runs them through the dispatch pipeline: rule matching, veto evaluation,
// template rendering, dispatch assembly, and Slack webhook delivery.
//
// Cold start (main):
//  1. Load configuration and initialize the structured logger.
//  2. Build the trigger registry from the event producers.
//  3. Open the configured rule store (Postgres, YAML file, or in-memory).
//  4. Create the SSRF-safe Slack client and CloudWatch metrics.
//  5. Wire the Dispatcher, register the handler, call lambda.Start.
//
// Handler flow per SQS message:
//  1. Unmarshal the EventMessage envelope (parse failures are ACKed —
//     retrying a malformed body cannot succeed).
//  2. Record queue lag from the SentTimestamp attribute.
//  3. FireEvent with the envelope's trace ID on the context.
//  4. Report failed messages via partial batch responses so SQS retries
//     only those.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"relaypoint/internal/config"
	"relaypoint/internal/dispatch"
	"relaypoint/internal/producers"
	"relaypoint/internal/registry"
	"relaypoint/internal/rules"
	"relaypoint/internal/slack"
	"relaypoint/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
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

// Dispatcher is the subset of the dispatch pipeline the handler drives.
type Dispatcher interface {
	FireEvent(ctx context.Context, event types.Event) error
}

// Handler holds the dependencies for the notify worker Lambda handler.
type Handler struct {
	dispatcher Dispatcher
	metrics    dispatch.Metrics
	logger     types.Logger
}

// Handle processes an SQS event batch. Messages that fail dispatch are
// returned as batch item failures so SQS redelivers only those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord dispatches a single queued event.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.EventMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal event message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure: ACK, do not retry.
		return nil
	}

	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sentTimestamp); err == nil {
			h.metrics.RecordQueueLag(ctx, time.Since(sentAt))
		}
	}

	if msg.TraceID != "" {
		ctx = types.WithTraceID(ctx, msg.TraceID)
	}

	logger := h.logger.With(
		"event_id", msg.EventID,
		"trigger", string(msg.Trigger),
		"trace_id", msg.TraceID,
	)
	logger.Info("processing queued event")

	if err := h.dispatcher.FireEvent(ctx, msg.Event()); err != nil {
		return fmt.Errorf("dispatch event %s: %w", msg.EventID, err)
	}
	return nil
}

// parseMillisTimestamp parses a millisecond-epoch string, the format of the
// SQS SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

// newRuleStore opens the rule store selected by RULES_DRIVER.
func newRuleStore(ctx context.Context, cfg *config.Config) (types.RuleStore, error) {
	switch cfg.Rules.Driver {
	case config.RuleSourcePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
		if err != nil {
			return nil, fmt.Errorf("parsing database URL: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConns)
		poolCfg.MinConns = int32(cfg.Database.MinConns)
		poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

		acquireCtx, cancel := context.WithTimeout(ctx, cfg.Database.AcquireTimeout)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(acquireCtx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("creating database pool: %w", err)
		}
		return rules.NewPGStore(pool), nil

	case config.RuleSourceFile:
		store, err := rules.LoadFile(cfg.Rules.FilePath)
		if err != nil {
			return nil, fmt.Errorf("loading rule file %s: %w", cfg.Rules.FilePath, err)
		}
		return store, nil

	case config.RuleSourceMemory:
		return rules.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown rules driver %q", cfg.Rules.Driver)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger := &slogAdapter{logger: slogger}
	logger.Info("notify worker initializing (cold start)",
		"environment", cfg.Environment,
		"rules_driver", cfg.Rules.Driver,
	)

	// Trigger catalog, hints, vetoes, and context builders.
	builder := registry.NewBuilder()
	producers.RegisterAll(builder)
	reg := builder.Build()

	ctx := context.Background()

	store, err := newRuleStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open rule store", "error", err.Error())
		os.Exit(1)
	}

	retryPolicy := slack.DefaultRetryPolicy()
	retryPolicy.MaxRetries = cfg.Webhook.MaxRetries
	deliverer, err := slack.NewClient(
		cfg.Webhook.Timeout,
		cfg.Webhook.MaxRedirects,
		retryPolicy,
		cfg.Webhook.UserAgent,
		logger,
	)
	if err != nil {
		logger.Error("failed to create slack client", "error", err.Error())
		os.Exit(1)
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.EndpointURL != "" {
		awsOpts = append(awsOpts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err.Error())
		os.Exit(1)
	}
	metrics := dispatch.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)

	dispatcher := dispatch.NewDispatcher(
		reg,
		store,
		deliverer,
		cfg.Slack.SiteDefaults(),
		metrics,
		logger,
		types.RealClock{},
	)

	handler := &Handler{
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}

	logger.Info("notify worker initialized",
		"event_queue", cfg.AWS.EventQueue,
		"webhook_timeout", cfg.Webhook.Timeout.String(),
		"webhook_user_agent", cfg.Webhook.UserAgent,
	)

	lambda.Start(handler.Handle)
}
