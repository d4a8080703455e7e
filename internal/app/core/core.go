// Package core собирает общие зависимости бинарников: хранилища, кэш,
// публикацию событий, клиента Stripe, метрики и сам реконсилятор.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/membership-reconciler/internal/cache"
	"github.com/magabrotheeeer/membership-reconciler/internal/config"
	"github.com/magabrotheeeer/membership-reconciler/internal/identity"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/metrics"
	"github.com/magabrotheeeer/membership-reconciler/internal/migrations"
	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
	"github.com/magabrotheeeer/membership-reconciler/internal/rabbitmq"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
	"github.com/magabrotheeeer/membership-reconciler/internal/storage/repository"
)

// Options управляют тем, что поднимается при сборке.
type Options struct {
	// RunMigrations применяет миграции вместо ожидания готовой схемы.
	RunMigrations bool
	// SkipBroker не подключается к RabbitMQ даже при заданном URL.
	SkipBroker bool
}

// Core — собранные зависимости.
type Core struct {
	Storage    *repository.Storage
	Identity   *identity.Client
	Cache      *cache.Cache
	Provider   *paymentprovider.Client
	Registry   *prometheus.Registry
	Metrics    *metrics.Collector
	Reconciler *entitlement.Reconciler

	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

// Policy строит политику реконсиляции из конфига.
func Policy(cfg *config.Config) entitlement.Policy {
	p := entitlement.DefaultPolicy()
	p.RenewalBufferMonths = cfg.RenewalBuffer()
	if cfg.FallbackPeriodDays > 0 {
		p.FallbackPeriod = time.Duration(cfg.FallbackPeriodDays) * 24 * time.Hour
	}
	return p
}

// Build подключается ко всем зависимостям. Redis и RabbitMQ необязательны:
// без адреса в конфиге реконсилятор работает без кэша и без уведомлений.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Core, error) {
	const op = "core.Build"

	db, err := repository.New(cfg.StorageConnectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c := &Core{Storage: db, logger: logger}

	if opts.RunMigrations {
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			c.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else if err := waitForDB(ctx, db); err != nil {
		c.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.Identity = identity.NewClient(cfg.SupabaseURL, cfg.ServiceRoleKey)
	c.Provider = paymentprovider.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewCollector(c.Registry)

	recOpts := []entitlement.Option{
		entitlement.WithMetrics(c.Metrics),
		entitlement.WithSweepConcurrency(cfg.SweepConcurrency),
	}

	if cfg.AddressRedis != "" {
		c.Cache, err = cache.InitServer(ctx, cfg.RedisConnection, cfg.CacheTTL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		recOpts = append(recOpts, entitlement.WithCache(c.Cache))
	} else {
		logger.Info("redis address is not set, membership cache disabled")
	}

	if cfg.RabbitMQURL != "" && !opts.SkipBroker {
		c.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.ch, err = rabbitmq.SetupChannel(c.conn, rabbitmq.GetMembershipQueues())
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		recOpts = append(recOpts, entitlement.WithPublisher(rabbitmq.NewPublisher(c.ch)))
	} else {
		logger.Info("rabbitmq is not configured, membership notifications disabled")
	}

	c.Reconciler = entitlement.New(logger, c.Identity, c.Storage, Policy(cfg), recOpts...)
	return c, nil
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range 10 {
		if err = repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// Close освобождает все открытые соединения.
func (c *Core) Close() {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			c.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
