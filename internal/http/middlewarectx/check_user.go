package middlewarectx

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/ea-access/internal/http/response"
)

// RoleAdmin роль клиента, которому доступны пакетные операции.
const RoleAdmin = "admin"

// RequireRole пропускает запрос, только если роль клиента из JWT входит в roles.
// Должен стоять после JWTMiddleware.
func RequireRole(log *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireRole"
			role, _ := r.Context().Value(Role).(string)
			client, _ := r.Context().Value(Client).(string)
			if role == "" {
				log.Error("client identification missing",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("client identification missing"))
				return
			}
			if !slices.Contains(roles, role) {
				log.Warn("access denied",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("client", client),
					slog.String("role", role),
				)
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
