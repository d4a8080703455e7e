// Package scheduler запускает ExpirySweep по таймеру для окружений без внешнего cron.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/membership-reconciler/internal/app/core"
	"github.com/magabrotheeeer/membership-reconciler/internal/config"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

// Sweeper выполняет один проход очистки.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) entitlement.SweepReport
}

// App представляет приложение планировщика.
type App struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	closer   func()
}

// New подключается к хранилищам и брокеру и создает планировщик.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	c, err := core.Build(ctx, cfg, logger, core.Options{})
	if err != nil {
		return nil, err
	}
	app := NewWithSweeper(c.Reconciler, cfg.SweepInterval, logger)
	app.closer = c.Close
	return app, nil
}

// NewWithSweeper создает планировщик поверх готового Sweeper.
func NewWithSweeper(s Sweeper, interval time.Duration, logger *slog.Logger) *App {
	if interval <= 0 {
		interval = time.Hour
	}
	return &App{
		sweeper:  s,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		closer:   func() {},
	}
}

// Run выполняет очистку сразу и затем каждые interval до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	const op = "scheduler.Run"
	log := a.logger.With(slog.String("op", op))
	log.Info("scheduler started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.tick(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down scheduler service")
			a.closer()
			return nil
		case <-ticker.C:
			a.tick(ctx, log)
		}
	}
}

func (a *App) tick(ctx context.Context, log *slog.Logger) {
	report := a.sweeper.Sweep(ctx, a.now().UTC())
	res := report.Result()
	attrs := []any{
		slog.Int("candidates", report.Candidates),
		slog.Int("applied", report.Applied),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	}
	switch res.Status {
	case entitlement.StatusFailed:
		if report.Err != nil {
			attrs = append(attrs, sl.Err(report.Err))
		}
		log.Error("expiry sweep failed", attrs...)
	case entitlement.StatusPartiallyApplied:
		log.Warn("expiry sweep partially applied", attrs...)
	default:
		log.Info("expiry sweep completed", attrs...)
	}
}
