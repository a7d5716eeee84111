// Package downgradeexpired реализует HTTP-обработчик пакетного понижения истёкших подписок.
package downgradeexpired

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ea-access/internal/http/response"
	"github.com/magabrotheeeer/ea-access/internal/lib/sl"
	"github.com/magabrotheeeer/ea-access/internal/models"
)

// Handler обрабатывает запросы пакетного понижения.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс пакетного понижения истёкших подписок.
type Service interface {
	DowngradeExpired(ctx context.Context) ([]*models.Principal, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Понизить истёкшие подписки
// @Description Переводит на FREE всех пользователей с истёкшей подпиской и отзывает их токены.
// @Description Пользователи возвращаются с тарифом до понижения. При частичном сбое partial = true.
// @Tags Principals
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Пониженные пользователи"
// @Failure 403 {object} response.ErrorResponse "Требуется роль admin"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /principals/downgrade-expired [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.principal.downgradeexpired"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	downgraded, err := h.service.DowngradeExpired(r.Context())
	if err != nil && len(downgraded) == 0 {
		log.Error("failed to downgrade expired principals", sl.Err(err))
		status, resp := response.ServiceError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	if err != nil {
		log.Warn("expired principals downgraded partially", slog.Int("count", len(downgraded)), sl.Err(err))
	}
	if downgraded == nil {
		downgraded = []*models.Principal{}
	}

	log.Info("expired principals downgraded", slog.Int("count", len(downgraded)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"downgraded": len(downgraded),
		"principals": downgraded,
		"partial":    err != nil,
	}))
}
