package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"relaypoint/internal/types"
)

// RouterDeps bundles the dependencies the router wires into handlers.
type RouterDeps struct {
	Events *EventsHandler
	Stripe *StripeWebhookHandler
	Logger types.Logger
}

// NewRouter assembles the ingest API routes behind the shared middleware
// chain. The Stripe handler is optional: sites without a Stripe integration
// leave the signing secret unset and the route is not mounted.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(TraceMiddleware)
	r.Use(LogMiddleware(deps.Logger))
	r.Use(GunzipMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", deps.Events.HandleFire)
		r.Get("/triggers", deps.Events.HandleCatalog)
		if deps.Stripe != nil {
			r.Post("/stripe/webhook", deps.Stripe.Handle)
		}
	})

	return r
}
