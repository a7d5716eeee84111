// Package issue реализует HTTP-обработчик выпуска EA-токена.
//
// Выпуск деактивирует предыдущий активный токен пользователя. Открытое значение
// токена возвращается только в ответе и не пишется в логи.
package issue

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Request параметры выпуска. Если duration_days не задан, берётся срок по умолчанию.
type Request struct {
	UserID       string `json:"user_id" validate:"required,max=64"`
	DeviceID     string `json:"device_id" validate:"required,max=64"`
	Tier         string `json:"tier" validate:"required"`
	DurationDays int    `json:"duration_days" validate:"omitempty,gt=0"`
}

// Handler обрабатывает запросы выпуска токена.
type Handler struct {
	log         *slog.Logger
	service     Service
	validate    *validator.Validate
	defaultDays int
}

// Service описывает интерфейс выпуска токена.
type Service interface {
	Issue(ctx context.Context, userID, deviceID string, tier models.Tier, durationDays int) (*models.Token, error)
}

// New создает новый Handler. defaultDays используется, если срок не указан в запросе.
func New(log *slog.Logger, service Service, defaultDays int) *Handler {
	return &Handler{
		log:         log,
		service:     service,
		validate:    validator.New(),
		defaultDays: defaultDays,
	}
}

// ServeHTTP godoc
// @Summary Выпустить EA-токен
// @Description Выпускает токен для пользователя и терминала, деактивируя предыдущий.
// @Tags Tokens
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Параметры выпуска"
// @Success 200 {object} map[string]any "Выпущенный токен"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /tokens [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.token.issue"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	t, err := models.ParseTier(req.Tier)
	if err != nil {
		log.Error("unknown tier", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	days := req.DurationDays
	if days == 0 {
		days = h.defaultDays
	}

	tok, err := h.service.Issue(r.Context(), req.UserID, req.DeviceID, t, days)
	if err != nil {
		log.Error("failed to issue token", slog.String("user_id", req.UserID), sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("token issued", slog.String("user_id", req.UserID), sl.Token(tok.Token))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": tok,
	}))
}
