// Package upgrade реализует HTTP-обработчик повышения тарифа пользователя.
//
// Окно подписки перезаписывается: end = now + duration_days. Если тариф даёт право
// на EA и терминал привязан, в ответе возвращается новый токен.
package upgrade

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
	"github.com/magabrotheeeer/ea-access/internal/models"
	"github.com/magabrotheeeer/ea-access/internal/services/tier"
)

// Request новый тариф и срок подписки.
type Request struct {
	Tier         string `json:"tier" validate:"required"`
	DurationDays int    `json:"duration_days" validate:"required,gt=0"`
}

// Handler обрабатывает запросы повышения тарифа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики смены тарифа.
type Service interface {
	Upgrade(ctx context.Context, userID string, tier models.Tier, durationDays int) (*tier.UpgradeResult, error)
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
// @Summary Повысить тариф
// @Description Устанавливает платный тариф на duration_days суток от текущего момента.
// @Tags Principals
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "ID пользователя"
// @Param request body Request true "Тариф и срок"
// @Success 200 {object} tier.UpgradeResult "Результат смены тарифа"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/{user_id}/upgrade [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.upgrade"
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
	log.Info("request body decoded", slog.Any("request", req))

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

	res, err := h.service.Upgrade(r.Context(), userID, t, req.DurationDays)
	if err != nil {
		log.Error("failed to upgrade principal", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("principal upgraded", slog.String("tier", string(t)), slog.Bool("token_issued", res.Token != nil))
	render.JSON(w, r, response.StatusOKWithData(res))
}
