// Package revoke реализует HTTP-обработчик отзыва EA-токена.
package revoke

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
)

// Handler обрабатывает запросы отзыва токена.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс отзыва токена.
type Service interface {
	Revoke(ctx context.Context, token string) (bool, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отозвать EA-токен
// @Description Деактивирует токен. Повторный вызов успешен и возвращает was_active = false.
// @Tags Tokens
// @Produce  json
// @Security BearerAuth
// @Param token path string true "EA-токен"
// @Success 200 {object} map[string]any "Результат отзыва"
// @Failure 404 {object} response.ErrorResponse "Токен не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /tokens/{token} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.token.revoke"
	token := chi.URLParam(r, "token")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		sl.Token(token),
	)

	wasActive, err := h.service.Revoke(r.Context(), token)
	if err != nil {
		log.Error("failed to revoke token", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("token revoked", slog.Bool("was_active", wasActive))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"was_active": wasActive,
	}))
}
