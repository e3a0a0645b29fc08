/**
 * @description
 * This file sets up the HTTP router for the payout-service using the go-chi/chi
 * router. It defines the API routes, applies middleware for logging, CORS, and
 * authentication, and maps the routes to their corresponding handler functions.
 *
 * Route groups:
 * - /health: unauthenticated liveness probe.
 * - /api/v1: vendor dashboard endpoints, JWT-authenticated.
 * - /webhooks: processor callbacks, signature-verified per processor.
 * - /internal: service-to-service endpoints, guarded by the internal API key.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the payout-service routes.
func NewRouter(h *PayoutHandlers, wh *WebhookHandlers, jwksURL, internalAPIKey string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Payout service is healthy"))
	})

	// Vendor-facing routes that require authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(VendorAuthMiddleware(jwksURL))

		r.Post("/payouts", h.CreatePayout)
		r.Get("/payouts", h.ListPayouts)
		r.Get("/payouts/{payoutID}", h.GetPayout)
		r.Post("/payouts/{payoutID}/cancel", h.CancelPayout)
		r.Post("/payouts/{payoutID}/retry", h.RetryPayout)

		r.Get("/balance", h.GetBalance)
		r.Get("/summary", h.GetSummary)

		r.Get("/schedule", h.GetSchedule)
		r.Put("/schedule", h.UpdateSchedule)

		r.Post("/accounts", h.CreatePayoutAccount)
		r.Get("/accounts", h.ListPayoutAccounts)
		r.Get("/accounts/{accountID}", h.GetPayoutAccount)
		r.Put("/accounts/{accountID}/primary", h.SetPrimaryPayoutAccount)
		r.Post("/accounts/{accountID}/verify", h.VerifyPayoutAccount)
		r.Delete("/accounts/{accountID}", h.DeletePayoutAccount)
	})

	// Processor webhook callbacks
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/stripe", wh.HandleStripeWebhook)
		r.Post("/paypal", wh.HandlePayPalWebhook)
	})

	// Service-to-service routes
	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/earnings", h.CreditEarnings)
		r.Post("/earnings/settle", h.SettlePendingEarnings)
		r.Post("/balance/hold", h.HoldBalance)
		r.Post("/balance/release-hold", h.ReleaseHeldBalance)
		r.Post("/payouts/{payoutID}/settle", h.SettlePayout)
		r.Get("/vendors/{vendorID}/balance", h.GetVendorBalance)
		r.Post("/sweep", h.TriggerSweep)
	})

	return r
}
