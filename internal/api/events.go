package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"relaypoint/internal/registry"
	"relaypoint/internal/types"
)

// EventPublisher hands a validated event envelope to the queue. Implemented
// by queue.EventPublisher.
type EventPublisher interface {
	Publish(ctx context.Context, msg types.EventMessage) (types.EventMessage, error)
}

// EventsHandler accepts domain events from the commerce platform and
// enqueues them for the notify worker.
type EventsHandler struct {
	publisher EventPublisher
	registry  *registry.Registry
	validate  *validator.Validate
	maxBody   int64
	logger    types.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(publisher EventPublisher, reg *registry.Registry, maxBody int64, logger types.Logger) *EventsHandler {
	return &EventsHandler{
		publisher: publisher,
		registry:  reg,
		validate:  validator.New(),
		maxBody:   maxBody,
		logger:    logger,
	}
}

// HandleFire accepts an EventMessage, validates it against the trigger
// catalog, and enqueues it. Responds 202: acceptance means "queued", not
// "delivered" — delivery is the worker's concern.
func (h *EventsHandler) HandleFire(w http.ResponseWriter, r *http.Request) {
	var msg types.EventMessage
	if err := DecodeJSON(w, r, h.maxBody, &msg); err != nil {
		Error(w, r, err)
		return
	}

	if err := h.validate.Struct(msg); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"trigger is required", err))
		return
	}
	if !h.registry.HasTrigger(msg.Trigger) {
		Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeRuleUnknownTrigger,
			"unknown trigger", nil, map[string]any{"trigger": string(msg.Trigger)}))
		return
	}

	enqueued, err := h.publisher.Publish(r.Context(), msg)
	if err != nil {
		h.logger.Error("failed to enqueue event",
			"trigger", string(msg.Trigger),
			"error", err.Error(),
		)
		Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to enqueue event", err))
		return
	}

	JSON(w, http.StatusAccepted, APIResponse{Data: enqueued})
}

// triggerCatalogEntry is the read model for the configuration surface: one
// trigger with the template tokens its notifications can use.
type triggerCatalogEntry struct {
	ID    types.TriggerID   `json:"id"`
	Label string            `json:"label"`
	Hints []types.HintEntry `json:"hints"`
}

// HandleCatalog returns the trigger catalog sorted by label, each trigger
// with its advertised hint set.
func (h *EventsHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	descriptors := h.registry.Triggers()
	catalog := make([]triggerCatalogEntry, 0, len(descriptors))
	for _, d := range descriptors {
		catalog = append(catalog, triggerCatalogEntry{
			ID:    d.ID,
			Label: d.Label,
			Hints: h.registry.Hints(d.ID),
		})
	}
	JSON(w, http.StatusOK, APIResponse{Data: catalog})
}
