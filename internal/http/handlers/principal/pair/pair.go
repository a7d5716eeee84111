// Package pair реализует HTTP-обработчик проверки доступа к торговому инструменту.
package pair

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
)

// Handler обрабатывает запросы проверки инструмента.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс проверки инструмента.
type Service interface {
	CanTradePair(ctx context.Context, userID, pair string) (bool, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Доступ к инструменту
// @Description Сообщает, открыт ли инструмент действующему тарифу пользователя. После истечения подписки действуют инструменты FREE.
// @Tags Principals
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Param pair path string true "Инструмент, например XAUUSD"
// @Success 200 {object} map[string]any "Решение"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Пустой инструмент"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id}/pairs/{pair} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.pair"
	userID := chi.URLParam(r, "user_id")
	pair := strings.ToUpper(chi.URLParam(r, "pair"))
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
		slog.String("pair", pair),
	)

	allowed, err := h.service.CanTradePair(r.Context(), userID, pair)
	if err != nil {
		log.Error("failed to check pair", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_id": userID,
		"pair":    pair,
		"allowed": allowed,
	}))
}
