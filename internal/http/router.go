package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stayhq/reservations/internal/observability"
	"github.com/stayhq/reservations/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Group(func(r chi.Router) {
		r.Use(IdempotencyKeyMiddleware)
		r.Post("/v1/reservations", h.CreateReservation)
	})

	r.Get("/v1/reservations/{id}", h.GetReservation)
	r.Post("/v1/reservations/{id}/confirm", h.ConfirmReservation)
	r.Post("/v1/reservations/{id}/reject", h.RejectReservation)
	r.Post("/v1/reservations/{id}/payment-proof", h.SubmitPaymentProof)
	r.Post("/v1/reservations/{id}/cancel", h.CancelReservation)

	r.Get("/v1/room-types/{id}/availability", h.ListAvailability)
	r.Post("/v1/room-types/{id}/peak-rates", h.CreatePeakRate)
	r.Get("/v1/room-types/{id}/peak-rates", h.ListPeakRates)
	r.Delete("/v1/room-types/{id}/peak-rates/{rateID}", h.DeletePeakRate)

	r.Post("/v1/payments/callback", h.PaymentCallback)
	r.Post("/v1/admin/sweep", h.Sweep)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
