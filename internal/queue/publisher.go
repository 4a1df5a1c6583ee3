// Package queue publishes fired events onto the SQS event queue that feeds
// the notify worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"relaypoint/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventPublisher serializes event envelopes and sends them to the event
// queue. Each message carries the trigger as a message attribute so queue
// consumers and DLQ tooling can filter without parsing bodies.
type EventPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
	clock    types.Clock
}

// NewEventPublisher creates an EventPublisher targeting the given queue.
func NewEventPublisher(client SQSSender, queueURL string, logger types.Logger, clock types.Clock) *EventPublisher {
	return &EventPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		clock:    clock,
	}
}

// Publish fills in missing envelope fields (event ID, timestamp, trace ID)
// and sends the message. The populated envelope is returned so callers can
// echo the assigned IDs.
func (p *EventPublisher) Publish(ctx context.Context, msg types.EventMessage) (types.EventMessage, error) {
	if msg.EventID == "" {
		msg.EventID = uuid.New().String()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = p.clock.Now()
	}
	if msg.TraceID == "" {
		if traceID := types.GetTraceID(ctx); traceID != "" {
			msg.TraceID = traceID
		} else {
			msg.TraceID = uuid.New().String()
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return msg, fmt.Errorf("event publisher: failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"trigger": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Trigger)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return msg, fmt.Errorf("event publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("event published",
		"event_id", msg.EventID,
		"trigger", string(msg.Trigger),
		"trace_id", msg.TraceID,
	)

	return msg, nil
}
