package types

import (
	"context"
	"time"
)

// TriggerID identifies a class of domain event (e.g. "purchase_complete").
// The set of valid trigger IDs is open: event producers register their own
// triggers during process initialization.
type TriggerID string

// Built-in trigger identifiers contributed by the bundled producers.
const (
	TriggerPurchaseComplete   TriggerID = "purchase_complete"
	TriggerPurchaseFailed     TriggerID = "purchase_failed"
	TriggerDiscountApplied    TriggerID = "discount_applied"
	TriggerUserRegistered     TriggerID = "user_registered"
	TriggerLicenseGenerated   TriggerID = "license_generated"
	TriggerLicenseActivated   TriggerID = "license_activated"
	TriggerLicenseDeactivated TriggerID = "license_deactivated"
	TriggerLicenseUpgraded    TriggerID = "license_upgraded"
)

// TriggerDescriptor pairs a trigger ID with its human-readable label, shown
// on the rule configuration surface.
type TriggerDescriptor struct {
	ID    TriggerID `json:"id"`
	Label string    `json:"label"`
}

// Event is a fired domain event: a trigger plus a trigger-specific payload.
// Events are immutable once fired and ephemeral — created by a producer,
// consumed by the dispatch pipeline, then discarded.
type Event struct {
	ID         string         `json:"id"`
	Trigger    TriggerID      `json:"trigger"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Rule is a user-configured binding of a trigger to a scope, a message
// template, and delivery overrides. Rules are persisted by the external
// configuration surface; the dispatch core only ever reads them.
type Rule struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Trigger  TriggerID         `json:"trigger"`
	Scope    RuleScope         `json:"scope"`
	Template RuleTemplate      `json:"template"`
	Delivery DeliveryOverrides `json:"delivery"`
}

var _ Validator = Rule{}

// Validate implements Validator. A rule without an ID or trigger can never
// be matched or audited, so both are rejected at every write surface.
func (r Rule) Validate() error {
	if r.ID == "" {
		return NewAppError(ErrCodeValidationMissingField, "rule is missing an id", nil)
	}
	if r.Trigger == "" {
		return NewAppError(ErrCodeValidationMissingField, "rule "+r.ID+" is missing a trigger", nil)
	}
	return nil
}

// RuleTemplate holds the three templatable message fields. Any of them may
// contain %token% placeholders.
type RuleTemplate struct {
	Pretext string `json:"pretext,omitempty"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"`
}

// DeliveryOverrides are the per-rule delivery settings. Empty fields fall
// back to the site defaults, which in turn fall back to whatever the
// destination webhook defines.
type DeliveryOverrides struct {
	WebhookURL string `json:"webhook_url,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty"`
	Icon       string `json:"icon,omitempty"`
	Color      string `json:"color,omitempty"`
}

// SiteDefaults are the site-wide delivery settings a DispatchRequest falls
// back to when a rule does not override them.
type SiteDefaults struct {
	WebhookURL string
	Channel    string
	Username   string
	Icon       string
	Color      string
}

// DispatchRequest is the fully resolved outbound message description handed
// to the delivery collaborator. Unresolved %token% placeholders, if any,
// are carried through literally.
type DispatchRequest struct {
	RuleID     string    `json:"rule_id"`
	Trigger    TriggerID `json:"trigger"`
	WebhookURL string    `json:"webhook_url"`
	Channel    string    `json:"channel,omitempty"`
	Username   string    `json:"username,omitempty"`
	Icon       string    `json:"icon,omitempty"`
	Color      string    `json:"color,omitempty"`
	Pretext    string    `json:"pretext,omitempty"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body,omitempty"`
}

// DeliveryAck is the delivery collaborator's acknowledgement of a handed-off
// DispatchRequest.
type DeliveryAck struct {
	ProviderMessageID string
	DeliveredAt       time.Time
}

// VetoDecision is the outcome of a single pre-dispatch veto check.
type VetoDecision string

const (
	// VetoContinue lets the matched rule proceed to rendering.
	VetoContinue VetoDecision = "continue"

	// VetoBail cancels dispatch for the matched rule. The rule is dropped
	// silently; no error is reported and no partial dispatch occurs.
	VetoBail VetoDecision = "bail"
)

// VetoFunc is a pre-dispatch check invoked per matched rule candidate, after
// matching and before rendering. It must be a pure function of its inputs:
// no mutation of the rule set, no state leaked across invocations.
type VetoFunc func(ctx context.Context, rule Rule, event Event) VetoDecision

// ContextBuilder derives the template substitution context for one trigger's
// events. Values are plain strings; substitution is single-pass, so values
// are never re-scanned for tokens.
type ContextBuilder func(event Event) map[string]string

// HintEntry documents one %token% a trigger's context builder can resolve.
// Hints are advisory: the configuration surface shows them next to the
// template editor, but the renderer accepts any token the context defines.
type HintEntry struct {
	Token       string `json:"token"`
	Description string `json:"description"`
}

// NoAccountSentinel is what the %username% token renders to when the
// customer has no linked account (user_id == 0). Every producer's context
// builder applies the same sentinel so a guest checkout never leaks an
// empty or fabricated username.
const NoAccountSentinel = "This customer does not have an account"
