package producers

import (
	"encoding/json"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"relaypoint/internal/types"
)

// Stripe event types translated into domain triggers.
const (
	stripeCheckoutCompleted = "checkout.session.completed"
	stripePaymentFailed     = "payment_intent.payment_failed"
)

// WebhookVerifier verifies a provider webhook signature.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// StripeVerifier implements WebhookVerifier using stripe-go's HMAC-SHA256
// signature check with timestamp tolerance.
type StripeVerifier struct{}

var _ WebhookVerifier = (*StripeVerifier)(nil)

// Verify validates the Stripe-Signature header against the signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

// stripeWebhookEvent is a minimal representation of a Stripe webhook event.
// Only the fields needed for translation are decoded; the full stripe.Event
// type stays out of the hot path to keep testing straightforward.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSessionObj struct {
	CustomerDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
	AmountTotal int64             `json:"amount_total"`
	Currency    string            `json:"currency"`
	PaymentID   string            `json:"payment_intent"`
	Metadata    map[string]string `json:"metadata"`
}

type stripePaymentIntentObj struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	ReceiptEmail string            `json:"receipt_email"`
	Metadata     map[string]string `json:"metadata"`
}

// TranslateStripeEvent converts a raw Stripe webhook payload into a domain
// event envelope. The second return value is false for event types the
// dispatcher has no trigger for; those are acknowledged and dropped.
func TranslateStripeEvent(payload []byte) (types.EventMessage, bool, error) {
	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return types.EventMessage{}, false, types.NewAppError(
			types.ErrCodeValidationInvalidEvent, "invalid stripe event JSON", err)
	}

	switch event.Type {
	case stripeCheckoutCompleted:
		return translateCheckoutCompleted(event)
	case stripePaymentFailed:
		return translatePaymentFailed(event)
	default:
		return types.EventMessage{}, false, nil
	}
}

func translateCheckoutCompleted(event stripeWebhookEvent) (types.EventMessage, bool, error) {
	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return types.EventMessage{}, false, types.NewAppError(
			types.ErrCodeValidationInvalidEvent, "invalid checkout session object", err)
	}

	payload := map[string]any{
		"name":       session.CustomerDetails.Name,
		"email":      session.CustomerDetails.Email,
		"total":      formatStripeAmount(session.AmountTotal, session.Currency),
		"payment_id": session.PaymentID,
	}
	mergeStripeMetadata(payload, session.Metadata)

	return types.EventMessage{
		EventID:    event.ID,
		Trigger:    types.TriggerPurchaseComplete,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
		Payload:    payload,
	}, true, nil
}

func translatePaymentFailed(event stripeWebhookEvent) (types.EventMessage, bool, error) {
	var intent stripePaymentIntentObj
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return types.EventMessage{}, false, types.NewAppError(
			types.ErrCodeValidationInvalidEvent, "invalid payment intent object", err)
	}

	payload := map[string]any{
		"email":      intent.ReceiptEmail,
		"total":      formatStripeAmount(intent.Amount, intent.Currency),
		"payment_id": intent.ID,
	}
	mergeStripeMetadata(payload, intent.Metadata)

	return types.EventMessage{
		EventID:    event.ID,
		Trigger:    types.TriggerPurchaseFailed,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
		Payload:    payload,
	}, true, nil
}

// mergeStripeMetadata copies the keys our checkout integration stamps on
// Stripe objects (download_id, price_id, download name, user_id) into the
// event payload so scoping and rendering work like native store events.
func mergeStripeMetadata(payload map[string]any, metadata map[string]string) {
	for _, key := range []string{"download_id", "price_id", "download", "user_id", "username", "name"} {
		if v, ok := metadata[key]; ok && v != "" {
			payload[key] = v
		}
	}
}

// formatStripeAmount renders a minor-unit amount as "12.34 usd". Stripe
// amounts are integers in the currency's smallest unit.
func formatStripeAmount(amount int64, currency string) string {
	major := strconv.FormatFloat(float64(amount)/100, 'f', 2, 64)
	if currency == "" {
		return major
	}
	return major + " " + currency
}
