// Package validate реализует HTTP-обработчик проверки EA-токена терминалом.
//
// Отказ проверки не является ошибкой запроса: ответ 200 с valid = false
// и машиночитаемой причиной в поле reason.
package validate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Request токен и терминал, который его предъявляет.
type Request struct {
	Token    string `json:"token" validate:"required,max=32"`
	DeviceID string `json:"device_id" validate:"required,max=64"`
}

// Result тело ответа проверки.
type Result struct {
	Valid     bool        `json:"valid"`
	Reason    string      `json:"reason,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Tier      models.Tier `json:"tier,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// Handler обрабатывает запросы проверки токена.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс проверки токена.
type Service interface {
	Validate(ctx context.Context, token, deviceID string) (models.ValidationResult, error)
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
// @Summary Проверить EA-токен
// @Description Проверяет, что токен существует, активен, привязан к терминалу и не истёк.
// @Tags EA
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен и терминал"
// @Success 200 {object} Result "Результат проверки"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /ea/validate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.ea.validate"
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

	res, err := h.service.Validate(r.Context(), req.Token, req.DeviceID)
	if err != nil {
		log.Error("failed to validate token", sl.Token(req.Token), sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(Result{
		Valid:     res.Valid,
		Reason:    models.ReasonCode(res.Reason),
		UserID:    res.UserID,
		Tier:      res.Tier,
		ExpiresAt: res.ExpiresAt,
	}))
}
