// Package lookup реализует HTTP-обработчик поиска действующего токена по терминалу.
package lookup

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

// Handler обрабатывает запросы поиска токена.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс поиска токена по терминалу.
type Service interface {
	ActiveForDevice(ctx context.Context, deviceID string) (*models.Token, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Токен терминала
// @Description Возвращает действующий токен, привязанный к терминалу.
// @Tags Tokens
// @Produce  json
// @Security BearerAuth
// @Param device_id path string true "ID терминала"
// @Success 200 {object} map[string]any "Токен"
// @Failure 404 {object} response.ErrorResponse "Действующий токен не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /devices/{device_id}/token [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.token.lookup"
	deviceID := chi.URLParam(r, "device_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("device_id", deviceID),
	)

	tok, err := h.service.ActiveForDevice(r.Context(), deviceID)
	if err != nil {
		log.Info("no usable token for device", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": tok,
	}))
}
