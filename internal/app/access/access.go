// Package access собирает HTTP-сервис выдачи и проверки EA-токенов.
package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/ea-access/internal/app/core"
	"github.com/magabrotheeeer/ea-access/internal/config"
	"github.com/magabrotheeeer/ea-access/internal/lib/jwt"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	authservice "github.com/magabrotheeeer/ea-access/internal/services/auth"
	"github.com/magabrotheeeer/ea-access/internal/services/scheduler"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервис со всеми зависимостями.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	core    *core.Core
	sweeper *scheduler.Service
}

// New создаёт приложение: хранилище, миграции, кеш, сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	c, err := core.New(ctx, cfg, logger, core.Options{
		RunMigrations: true,
		Registerer:    prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, err
	}

	if cfg.JWTSecretKey == "" {
		logger.Warn("jwt secret key is empty, API clients will not be able to log in safely")
	}
	authService := authservice.NewAuthService(cfg.Clients, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL))

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, c, authService)

	app := &App{
		server: &http.Server{
			Addr:         cfg.AddressHTTP,
			Handler:      router,
			ReadTimeout:  cfg.TimeoutHTTP,
			WriteTimeout: cfg.TimeoutHTTP,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: logger,
		core:   c,
	}

	if cfg.Sweeper.Embedded || cfg.StorageType == config.StorageMemory {
		// без брокера: события об очистке публикует только отдельный процесс
		app.sweeper = scheduler.NewService(c.Tokens, c.Tiers, nil, c.Clock, logger, cfg.Sweeper.Interval)
	}
	return app, nil
}

// Run запускает HTTP-сервер и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if a.sweeper != nil {
		go func() {
			if err := a.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("embedded sweeper stopped", sl.Err(err))
			}
		}()
	}

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
		_ = a.core.Close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.core.Close(); closeErr != nil {
			a.logger.Error("failed to close resources", sl.Err(closeErr))
		}
		return err
	}
}
