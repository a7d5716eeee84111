// Package get реализует HTTP-обработчик чтения карточки пользователя и сводки по подписке.
package get

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

// Handler обрабатывает запросы чтения пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики чтения пользователя.
type Service interface {
	Get(ctx context.Context, userID string) (*models.Principal, error)
	Stats(ctx context.Context, userID string) (*models.PrincipalStats, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить пользователя
// @Description Возвращает пользователя и сводку: активна ли подписка, сколько дней осталось, остаток сигналов.
// @Tags Principals
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Success 200 {object} map[string]any "Пользователь и сводка"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.get"
	userID := chi.URLParam(r, "user_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		log.Error("failed to get principal", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		log.Error("failed to build principal stats", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"principal": p,
		"stats":     stats,
	}))
}
