// Package device реализует HTTP-обработчик привязки торгового терминала к пользователю.
package device

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
)

// Request идентификатор счёта торгового терминала.
type Request struct {
	DeviceID string `json:"device_id" validate:"required,max=64"`
}

// Handler обрабатывает запросы привязки терминала.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики привязки терминала.
type Service interface {
	LinkDevice(ctx context.Context, userID, deviceID string) error
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
// @Summary Привязать терминал
// @Description Сохраняет ID счёта терминала. Новые EA-токены привязываются к нему.
// @Tags Principals
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Param request body Request true "ID терминала"
// @Success 200 {object} map[string]any "Терминал привязан"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id}/device [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.device"
	userID := chi.URLParam(r, "user_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
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

	if err := h.service.LinkDevice(r.Context(), userID, req.DeviceID); err != nil {
		log.Error("failed to link device", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("device linked")
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_id":   userID,
		"device_id": req.DeviceID,
	}))
}
