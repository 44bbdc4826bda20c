package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/ticket-inventory/internal/idempotency"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/robertarktes/ticket-inventory/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency, callbackSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.With(CallbackSecretMiddleware(callbackSecret)).Post("/v1/payments/callback", h.PaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl, logger))
		r.Use(IdentityMiddleware)

		r.Post("/v1/events/{id}/publish", h.PublishEvent)
		r.Post("/v1/events/{id}/cancel", h.CancelEvent)
		r.Get("/v1/events/{id}/availability", h.Availability)
		r.With(IdempotencyMiddleware(idemp)).Post("/v1/purchases", h.CreatePurchase)
		r.Get("/v1/tickets/{id}", h.GetTicket)
		r.Get("/v1/users/{id}/tickets", h.ListUserTickets)
		r.Post("/v1/tickets/{id}/checkin", h.CheckIn)
	})

	return r
}
