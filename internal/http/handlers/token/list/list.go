// Package list реализует HTTP-обработчик списка активных токенов пользователя.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Handler обрабатывает запросы списка токенов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс чтения токенов пользователя.
type Service interface {
	ListActiveForUser(ctx context.Context, userID string) ([]*models.Token, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Активные токены пользователя
// @Description Возвращает действующие токены пользователя. Истёкшие токены выключаются и не возвращаются.
// @Tags Tokens
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Success 200 {object} map[string]any "Список токенов"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id}/tokens [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.token.list"
	userID := chi.URLParam(r, "user_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	tokens, err := h.service.ListActiveForUser(r.Context(), userID)
	if err != nil {
		log.Error("failed to list tokens", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	if tokens == nil {
		tokens = []*models.Token{}
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"tokens": tokens,
	}))
}
