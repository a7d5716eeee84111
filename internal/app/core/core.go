// Package core собирает хранилище и сервисы, общие для HTTP-сервиса и процесса очистки.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/ea-access/internal/cache"
	"github.com/magabrotheeeer/ea-access/internal/config"
	"github.com/magabrotheeeer/ea-access/internal/lib/clock"
	"github.com/magabrotheeeer/ea-access/internal/lib/credential"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/metrics"
	"github.com/magabrotheeeer/ea-access/internal/migrations"
	"github.com/magabrotheeeer/ea-access/internal/services/entitlement"
	"github.com/magabrotheeeer/ea-access/internal/services/tier"
	"github.com/magabrotheeeer/ea-access/internal/services/token"
	"github.com/magabrotheeeer/ea-access/internal/storage/memory"
	"github.com/magabrotheeeer/ea-access/internal/storage/repository"
)

// Store хранилище токенов и пользователей.
type Store interface {
	token.Repository
	tier.Repository
	Ping(ctx context.Context) error
}

// Options управляет запуском хранилища.
type Options struct {
	// RunMigrations применяет миграции при старте. Иначе ждём, пока их применит другой процесс.
	RunMigrations bool
	// Registerer реестр метрик, nil отключает метрики.
	Registerer prometheus.Registerer
	// Clock источник времени, по умолчанию системные часы в UTC.
	Clock clock.Clock
}

// Core набор сервисов поверх одного хранилища.
type Core struct {
	Store       Store
	Tokens      *token.Service
	Tiers       *tier.Service
	Entitlement *entitlement.Service
	Metrics     *metrics.Metrics
	Clock       clock.Clock

	log     *slog.Logger
	closers []func() error
}

// New подключает хранилище и кеш из cfg и создаёт сервисы.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*Core, error) {
	const op = "core.New"

	c := &Core{log: log, Clock: opts.Clock}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if opts.Registerer != nil {
		c.Metrics = metrics.New(opts.Registerer)
	}

	switch cfg.StorageType {
	case config.StorageMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		c.Store = memory.New()
	case config.StoragePostgres:
		db, err := repository.New(cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.closers = append(c.closers, db.Close)
		if opts.RunMigrations {
			if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
				c.Close()
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		} else if err := repository.WaitForDB(ctx, db, cfg.Sweeper.DBWaitAttempts, cfg.Sweeper.DBWaitDelay); err != nil {
			c.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.Store = db
	default:
		return nil, fmt.Errorf("%s: unknown storage type %q", op, cfg.StorageType)
	}

	var principalCache tier.Cache
	if cfg.AddressRedis != "" {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.closers = append(c.closers, redisCache.Close)
		principalCache = redisCache
	} else {
		log.Info("redis address is empty, principal cache disabled")
	}

	evaluator := entitlement.NewEvaluator(cfg.Quota.FreeDailySignals)
	c.Tokens = token.NewService(
		c.Store,
		credential.New(cfg.Token.Length),
		c.Clock,
		log,
		c.Metrics,
		cfg.Token.MaxGenerateAttempts,
	)
	c.Tiers = tier.NewService(c.Store, c.Tokens, principalCache, evaluator, c.Clock, log, c.Metrics, cfg.CacheTTL)
	c.Entitlement = entitlement.NewService(c.Tokens, c.Tiers, evaluator, c.Clock, log)

	return c, nil
}

// Close освобождает соединения в обратном порядке открытия.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.log.Error("failed to close resource", sl.Err(err))
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
