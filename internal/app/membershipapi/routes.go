// Package membershipapi — HTTP‑сервис реконсиляции членства.
package membershipapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/health"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership/events"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership/members"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership/override"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership/status"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership/sweep"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership/verify"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership/webhook"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/membership-reconciler/internal/metrics"
)

// Deps — всё, что нужно маршрутам.
type Deps struct {
	Logger     *slog.Logger
	Verifier   jwt.Verifier
	Authorizer middlewarectx.Authorizer
	CronSecret string

	Reconciler interface {
		webhook.Service
		sweep.Service
	}
	Provider interface {
		webhook.Verifier
		webhook.PeriodLookup
		override.Provider
		events.Provider
	}
	Identity status.Store
	Cache    status.Cache
	Members  members.Service
	Observer webhook.Observer
	Gatherer prometheus.Gatherer
	Checks   []health.Check
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(ctx context.Context, r chi.Router, d Deps) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	limiter := middlewarectx.NewRateLimiter(ctx, rate.Limit(2), 20, 5*time.Minute)

	r.Route("/api/v1", func(r chi.Router) {
		// Вызовы от Stripe и планировщика: авторизация подписью и секретом.
		r.Post("/stripe/webhook", webhook.New(d.Logger, d.Provider, d.Reconciler, d.Observer, webhook.WithPeriodLookup(d.Provider)).ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.CronAuth(d.CronSecret, d.Logger))
			sweepHandler := sweep.New(d.Logger, d.Reconciler)
			r.Get("/cron/expire-subscriptions", sweepHandler.ServeHTTP)
			r.Post("/cron/expire-subscriptions", sweepHandler.ServeHTTP)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Verifier, d.Logger))
			r.Use(limiter.Middleware(d.Logger))

			r.Get("/membership", status.New(d.Logger, d.Identity, d.Cache).ServeHTTP)
			r.Post("/membership/verify-session", verify.New(d.Logger, d.Provider, d.Reconciler).ServeHTTP)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.RequireAdmin(d.Authorizer, d.Logger))
				r.Post("/membership/override", override.New(d.Logger, d.Provider, d.Reconciler).ServeHTTP)
				r.Get("/members", members.New(d.Logger, d.Members).ServeHTTP)
				r.Get("/stripe/events", events.New(d.Logger, d.Provider).ServeHTTP)
			})
		})
	})

	r.Get("/healthz", health.New(d.Logger, d.Checks...).ServeHTTP)
	r.Handle("/metrics", metrics.Handler(d.Gatherer))
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
