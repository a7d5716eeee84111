// Package entitlement реализует HTTP-обработчик решения об автоматическом исполнении.
package entitlement

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
	"github.com/magabrotheeeer/ea-access/internal/services/entitlement"
)

// Request токен и терминал, который запрашивает исполнение.
type Request struct {
	Token    string `json:"token" validate:"required,max=32"`
	DeviceID string `json:"device_id" validate:"required,max=64"`
}

// Handler обрабатывает запросы решения о доступе.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс принятия решения о доступе.
type Service interface {
	CheckAutoExecute(ctx context.Context, token, deviceID string) (*entitlement.Decision, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Право на автоисполнение
// @Description Проверяет токен и тариф владельца. Отказ возвращается как allowed = false с причиной.
// @Tags EA
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен и терминал"
// @Success 200 {object} entitlement.Decision "Решение"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /ea/entitlement [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.ea.entitlement"
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

	decision, err := h.service.CheckAutoExecute(r.Context(), req.Token, req.DeviceID)
	if err != nil {
		log.Error("failed to evaluate entitlement", sl.Token(req.Token), sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(decision))
}
