package membershipapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/membership-reconciler/internal/app/core"
	"github.com/magabrotheeeer/membership-reconciler/internal/config"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/health"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/membership-reconciler/internal/storage/repository"
)

// App — HTTP‑сервер и его зависимости.
type App struct {
	server *http.Server
	logger *slog.Logger
	core   *core.Core
}

// New собирает зависимости, применяет миграции и настраивает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	c, err := core.Build(ctx, cfg, logger, core.Options{RunMigrations: true})
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Logger:     logger,
		Verifier:   jwt.NewMaker(cfg.JWTSecret, time.Hour),
		Authorizer: middlewarectx.NewAllowList(cfg.AdminEmailSet()),
		CronSecret: cfg.CronSecret,
		Reconciler: c.Reconciler,
		Provider:   c.Provider,
		Identity:   c.Identity,
		Members:    c.Storage,
		Observer:   c.Metrics,
		Gatherer:   c.Registry,
		Checks: []health.Check{{
			Name: "postgres",
			Fn: func(ctx context.Context) error {
				return repository.CheckDatabaseReady(ctx, c.Storage)
			},
		}},
	}
	if c.Cache != nil {
		deps.Cache = c.Cache
		deps.Checks = append(deps.Checks, health.Check{
			Name: "redis",
			Fn: func(ctx context.Context) error {
				return c.Cache.Db.Ping(ctx).Err()
			},
		})
	}

	router := chi.NewRouter()
	RegisterRoutes(ctx, router, deps)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		core:   c,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.core.Close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.core.Close()
		return err
	}
}
