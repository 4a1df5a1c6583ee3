package api

import (
	"io"
	"net/http"

	"relaypoint/internal/producers"
	"relaypoint/internal/types"
)

// StripeWebhookHandler receives asynchronous payment events from Stripe and
// translates the relevant ones into domain events. The endpoint is not
// behind auth middleware — Stripe calls it directly; security is the
// Stripe-Signature HMAC check.
type StripeWebhookHandler struct {
	verifier  producers.WebhookVerifier
	publisher EventPublisher
	secret    types.SecretString
	maxBody   int64
	logger    types.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(verifier producers.WebhookVerifier, publisher EventPublisher, secret types.SecretString, maxBody int64, logger types.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		verifier:  verifier,
		publisher: publisher,
		secret:    secret,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// Handle verifies the signature, translates the event, and enqueues it.
// Unhandled event types and internal enqueue failures both return 200 so
// Stripe does not retry forever; failures are logged for investigation.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidEvent,
			"failed to read webhook body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.Warn("missing Stripe-Signature header")
		Error(w, r, types.NewAppError(types.ErrCodeDeliveryAuth,
			"missing Stripe-Signature header", nil))
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret.Unmask()); err != nil {
		h.logger.Warn("stripe signature verification failed", "error", err.Error())
		Error(w, r, types.NewAppError(types.ErrCodeDeliveryAuth,
			"webhook signature verification failed", err))
		return
	}

	msg, handled, err := producers.TranslateStripeEvent(payload)
	if err != nil {
		Error(w, r, err)
		return
	}
	if !handled {
		// Event type we have no trigger for: acknowledge and drop.
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.publisher.Publish(r.Context(), msg); err != nil {
		// Acknowledge anyway: a 5xx would make Stripe retry into the same
		// failure while the queue is down.
		h.logger.Error("failed to enqueue stripe event",
			"event_id", msg.EventID,
			"trigger", string(msg.Trigger),
			"error", err.Error(),
		)
	}

	w.WriteHeader(http.StatusOK)
}
