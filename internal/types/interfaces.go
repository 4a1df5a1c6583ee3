package types

import (
	"context"
	"time"
)

// Logger defines the structured logging interface used throughout the
// service. Production code backs it with log/slog; tests use a no-op mock.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// RuleStore is the read interface over the configured notification rules.
//
// ListRules has snapshot semantics: the returned slice never changes under
// the caller even if the configuration surface writes concurrently, and its
// order is the store's insertion order. A trigger with no rules yields an
// empty slice, not an error.
type RuleStore interface {
	ListRules(ctx context.Context, trigger TriggerID) ([]Rule, error)
}

// Deliverer is the external delivery collaborator the Dispatch Assembler
// hands finished requests to. Implementations own transport concerns
// (retries, rate limiting); the dispatch core only logs the outcome.
type Deliverer interface {
	Deliver(ctx context.Context, req DispatchRequest) (*DeliveryAck, error)
}

// Validator is implemented by entities that self-validate.
type Validator interface {
	Validate() error
}
