package access

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/ea-access/internal/app/core"
	"github.com/magabrotheeeer/ea-access/internal/config"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/auth/login"
	eaentitlement "github.com/magabrotheeeer/ea-access/internal/http/handlers/ea/entitlement"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/ea/validate"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/health"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/bytier"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/device"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/downgrade"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/downgradeexpired"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/get"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/pair"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/register"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/settings"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/signals"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/principal/upgrade"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/token/extend"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/token/issue"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/token/list"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/token/lookup"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/token/revoke"
	"github.com/magabrotheeeer/ea-access/internal/http/handlers/token/sweep"
	"github.com/magabrotheeeer/ea-access/internal/http/middlewarectx"
	authservice "github.com/magabrotheeeer/ea-access/internal/services/auth"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, c *core.Core, authService *authservice.AuthService) {
	limiter := middlewarectx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)

	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middlewarectx.MetricsMiddleware(c.Metrics),
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.With(middlewarectx.RateLimitMiddleware(logger, limiter)).
			Post("/login", login.New(logger, authService).ServeHTTP)

		// Терминал предъявляет сам EA-токен, JWT не нужен
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))
			r.Post("/ea/validate", validate.New(logger, c.Tokens).ServeHTTP)
			r.Post("/ea/entitlement", eaentitlement.New(logger, c.Entitlement).ServeHTTP)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))

			r.Post("/principals", register.New(logger, c.Tiers).ServeHTTP)
			r.Get("/principals/{user_id}", get.New(logger, c.Tiers).ServeHTTP)
			r.Put("/principals/{user_id}/device", device.New(logger, c.Tiers).ServeHTTP)
			r.Put("/principals/{user_id}/settings", settings.New(logger, c.Tiers).ServeHTTP)
			r.Get("/principals/{user_id}/pairs/{pair}", pair.New(logger, c.Tiers).ServeHTTP)
			r.Post("/principals/{user_id}/upgrade", upgrade.New(logger, c.Tiers).ServeHTTP)
			r.Post("/principals/{user_id}/downgrade", downgrade.New(logger, c.Tiers).ServeHTTP)
			r.Post("/principals/{user_id}/signals", signals.New(logger, c.Tiers).ServeHTTP)
			r.Get("/principals/{user_id}/tokens", list.New(logger, c.Tokens).ServeHTTP)

			r.Post("/tokens", issue.New(logger, c.Tokens, cfg.Token.DefaultDurationDays).ServeHTTP)
			r.Post("/tokens/{token}/extend", extend.New(logger, c.Tokens).ServeHTTP)
			r.Delete("/tokens/{token}", revoke.New(logger, c.Tokens).ServeHTTP)
			r.Get("/devices/{device_id}/token", lookup.New(logger, c.Tokens).ServeHTTP)

			// Пакетные операции только для админки
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, middlewarectx.RoleAdmin))
				r.Get("/principals", bytier.New(logger, c.Tiers).ServeHTTP)
				r.Post("/principals/downgrade-expired", downgradeexpired.New(logger, c.Tiers).ServeHTTP)
				r.Post("/tokens/sweep", sweep.New(logger, c.Tokens).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger, c.Store).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
