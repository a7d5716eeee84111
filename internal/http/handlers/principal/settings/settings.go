// Package settings реализует HTTP-обработчик настроек пользователя.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
	"github.com/magabrotheeeer/ea-access/internal/services/tier"
)

// Handler обрабатывает запросы записи настроек.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс записи настроек.
type Service interface {
	SetSettings(ctx context.Context, userID string, settings json.RawMessage) (*models.Principal, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Сохранить настройки
// @Description Перезаписывает настройки бота пользователя. Тело запроса JSON-объект не больше 16 КБ.
// @Tags Principals
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Param request body object true "Настройки"
// @Success 200 {object} map[string]any "Настройки сохранены"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 413 {object} response.ErrorResponse "Слишком большое тело"
// @Failure 422 {object} response.ErrorResponse "Настройки не JSON-объект"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id}/settings [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.settings"
	userID := chi.URLParam(r, "user_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	var raw json.RawMessage
	body := http.MaxBytesReader(w, r.Body, tier.MaxSettingsSize)
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, response.Error("request body too large"))
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	p, err := h.service.SetSettings(r.Context(), userID, raw)
	if err != nil {
		log.Error("failed to save settings", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("settings saved")
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_id":  p.UserID,
		"settings": p.Settings,
	}))
}
