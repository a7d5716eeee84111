// Package bytier реализует HTTP-обработчик выборки пользователей по тарифу.
package bytier

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Handler обрабатывает запросы выборки по тарифу.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс выборки пользователей.
type Service interface {
	ListByTier(ctx context.Context, tier models.Tier, limit, offset int) ([]*models.Principal, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Пользователи тарифа
// @Description Возвращает пользователей с сохранённым тарифом, упорядоченных по ID. Только для админки.
// @Tags Principals
// @Produce  json
// @Security BearerAuth
// @Param tier query string true "Тариф: FREE, PREMIUM, SUPER, SUPREME"
// @Param limit query int false "Размер страницы, по умолчанию 50"
// @Param offset query int false "Смещение"
// @Success 200 {object} map[string]any "Список пользователей"
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 422 {object} response.ErrorResponse "Неизвестный тариф"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.bytier"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"))
	if err != nil {
		log.Error("invalid limit", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid limit"))
		return
	}
	offset, err := intParam(query.Get("offset"))
	if err != nil {
		log.Error("invalid offset", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid offset"))
		return
	}

	tier, err := models.ParseTier(query.Get("tier"))
	if err != nil {
		log.Error("invalid tier", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	principals, err := h.service.ListByTier(r.Context(), tier, limit, offset)
	if err != nil {
		log.Error("failed to list principals", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	if principals == nil {
		principals = []*models.Principal{}
	}

	log.Info("principals listed", slog.String("tier", string(tier)), slog.Int("count", len(principals)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"tier":       tier,
		"list_count": len(principals),
		"principals": principals,
	}))
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
