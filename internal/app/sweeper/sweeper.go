// Package sweeper содержит приложение периодической очистки просроченных токенов и подписок.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/ea-access/internal/app/core"
	"github.com/magabrotheeeer/ea-access/internal/config"
	"github.com/magabrotheeeer/ea-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/services/scheduler"
)

const shutdownTimeout = 5 * time.Second

// App представляет приложение очистки.
type App struct {
	scheduler *scheduler.Service
	core      *core.Core
	conn      *amqp.Connection
	ch        *amqp.Channel
	// metrics и listener nil, если sweeper.metrics_address пуст.
	metrics  *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// New создает приложение очистки. Миграции применяет HTTP-сервис, здесь только ожидание БД.
// Счётчики очистки отдаются на sweeper.metrics_address, пустой адрес отключает метрики.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	var (
		reg      *prometheus.Registry
		listener net.Listener
	)
	if cfg.Sweeper.MetricsAddress != "" {
		ln, err := net.Listen("tcp", cfg.Sweeper.MetricsAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to listen metrics address: %w", err)
		}
		listener = ln
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	} else {
		logger.Info("metrics address is empty, sweeper metrics disabled")
	}

	opts := core.Options{}
	if reg != nil {
		opts.Registerer = reg
	}
	c, err := core.New(ctx, cfg, logger, opts)
	if err != nil {
		if listener != nil {
			_ = listener.Close()
		}
		return nil, err
	}

	app := &App{
		core:     c,
		listener: listener,
		logger:   logger,
	}
	if reg != nil {
		router := chi.NewRouter()
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		app.metrics = &http.Server{
			Handler:           router,
			ReadHeaderTimeout: shutdownTimeout,
		}
	}

	var publisher scheduler.Publisher
	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.conn = conn

		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		app.ch = ch
		publisher = rabbitmq.NewPublisher(ch, rabbitmq.Exchange)
	} else {
		logger.Warn("rabbitmq url is empty, sweep events will not be published")
	}

	app.scheduler = scheduler.NewService(c.Tokens, c.Tiers, publisher, c.Clock, logger, cfg.Sweeper.Interval)
	return app, nil
}

// MetricsAddr возвращает адрес, на котором отдаются метрики, или пустую строку.
func (a *App) MetricsAddr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

func (a *App) closeResources() {
	if a.listener != nil {
		// после Shutdown слушатель уже закрыт
		_ = a.listener.Close()
	}
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if err := a.core.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}

// Run запускает очистку и сервер метрик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if a.metrics != nil {
		go func() {
			a.logger.Info("metrics server starting on", slog.String("address", a.MetricsAddr()))
			if err := a.metrics.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", sl.Err(err))
			}
		}()
	}

	err := a.scheduler.Run(ctx)

	a.logger.Info("shutting down sweeper")
	if a.metrics != nil {
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := a.metrics.Shutdown(timeoutCtx); shutdownErr != nil {
			a.logger.Error("failed to stop metrics server", sl.Err(shutdownErr))
		}
	}
	a.closeResources()

	return err
}
