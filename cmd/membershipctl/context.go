package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/magabrotheeeer/membership-reconciler/internal/app/core"
	"github.com/magabrotheeeer/membership-reconciler/internal/config"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

// backend — операции, которые нужны командам.
type backend interface {
	Sweep(ctx context.Context, now time.Time) entitlement.SweepReport
	Reconcile(ctx context.Context, ev entitlement.Event) entitlement.Result
	IdentityUser(ctx context.Context, userID string) (*models.User, error)
	RelationalUser(ctx context.Context, userID string) (*models.User, error)
	RecentEvents(ctx context.Context, limit int) ([]paymentprovider.EventSummary, error)
	Close()
}

type commandContext struct {
	configPath string
	verbose    bool

	// open подключается к зависимостям; подменяется в тестах.
	open func(ctx context.Context, c *commandContext) (backend, error)
}

func newCommandContext() *commandContext {
	return &commandContext{open: openCore}
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	path := strings.TrimSpace(c.configPath)
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return nil, errors.New("config path is not set: use --config or CONFIG_PATH")
	}
	return config.Load(path)
}

func (c *commandContext) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (c *commandContext) withBackend(ctx context.Context, fn func(b backend) error) error {
	b, err := c.open(ctx, c)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

type coreBackend struct {
	*core.Core
}

func openCore(ctx context.Context, c *commandContext) (backend, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	built, err := core.Build(ctx, cfg, c.logger(), core.Options{})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return coreBackend{built}, nil
}

func (b coreBackend) Sweep(ctx context.Context, now time.Time) entitlement.SweepReport {
	return b.Reconciler.Sweep(ctx, now)
}

func (b coreBackend) Reconcile(ctx context.Context, ev entitlement.Event) entitlement.Result {
	return b.Reconciler.Reconcile(ctx, ev)
}

func (b coreBackend) IdentityUser(ctx context.Context, userID string) (*models.User, error) {
	return b.Identity.GetUser(ctx, userID)
}

func (b coreBackend) RelationalUser(ctx context.Context, userID string) (*models.User, error) {
	return b.Storage.GetUser(ctx, userID)
}

func (b coreBackend) RecentEvents(ctx context.Context, limit int) ([]paymentprovider.EventSummary, error) {
	return b.Provider.RecentEvents(ctx, limit)
}
