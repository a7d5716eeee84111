// Package sweep реализует HTTP-обработчик ручного запуска очистки истёкших токенов.
package sweep

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
)

// Handler обрабатывает запросы очистки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс очистки истёкших токенов.
type Service interface {
	SweepExpired(ctx context.Context) (int, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Очистить истёкшие токены
// @Description Деактивирует все активные токены с истёкшим сроком.
// @Tags Tokens
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Число деактивированных токенов"
// @Failure 403 {object} response.ErrorResponse "Требуется роль admin"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /tokens/sweep [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.token.sweep"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	n, err := h.service.SweepExpired(r.Context())
	if err != nil {
		log.Error("failed to sweep expired tokens", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"swept": n,
	}))
}
