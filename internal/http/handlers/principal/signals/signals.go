// Package signals реализует HTTP-обработчик учёта отправленного сигнала в дневной квоте.
package signals

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

// Handler обрабатывает запросы учёта сигналов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс учёта дневной квоты.
type Service interface {
	IncrementDailyQuota(ctx context.Context, userID string) (int, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Учесть сигнал
// @Description Увеличивает счётчик сигналов за текущие сутки UTC и возвращает новое значение.
// @Tags Principals
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Success 200 {object} map[string]any "Счётчик за сутки"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id}/signals [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.signals"
	userID := chi.URLParam(r, "user_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	count, err := h.service.IncrementDailyQuota(r.Context(), userID)
	if err != nil {
		log.Error("failed to increment daily quota", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"daily_signal_count": count,
	}))
}
