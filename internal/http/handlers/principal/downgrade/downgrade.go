// Package downgrade реализует HTTP-обработчик перевода пользователя на FREE.
package downgrade

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

// Handler обрабатывает запросы понижения тарифа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики понижения тарифа.
type Service interface {
	DowngradeToFree(ctx context.Context, userID string) (*models.Principal, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Перевести на FREE
// @Description Сбрасывает тариф до FREE и отзывает все EA-токены пользователя.
// @Tags Principals
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Success 200 {object} map[string]any "Пользователь после понижения"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id}/downgrade [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.downgrade"
	userID := chi.URLParam(r, "user_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	p, err := h.service.DowngradeToFree(r.Context(), userID)
	if err != nil {
		log.Error("failed to downgrade principal", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("principal downgraded")
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"principal": p,
	}))
}
