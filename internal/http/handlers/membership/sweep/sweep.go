// Package sweep реализует вызов плановой очистки истёкших подписок.
// Авторизация по секрету cron выполняется middleware до обработчика.
package sweep

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

// Service выполняет один проход очистки.
type Service interface {
	Sweep(ctx context.Context, now time.Time) entitlement.SweepReport
}

// Handler обрабатывает GET|POST /api/v1/cron/expire-subscriptions.
type Handler struct {
	log     *slog.Logger
	service Service
	now     func() time.Time
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		now:     time.Now,
	}
}

// ServeHTTP запускает ExpirySweep ровно один раз с моментом вызова.
// @Summary Очистка истёкших подписок
// @Description Переводит всех пользователей с истёкшей подпиской на free.
// @Tags Cron
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response "Отчёт очистки"
// @Failure 401 {object} response.ErrorResponse "Неверный секрет планировщика"
// @Failure 500 {object} response.ErrorResponse "Очистка не удалась"
// @Router /cron/expire-subscriptions [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.membership.sweep"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	report := h.service.Sweep(r.Context(), h.now().UTC())
	res := report.Result()

	attrs := []any{
		slog.Int("candidates", report.Candidates),
		slog.Int("applied", report.Applied),
		slog.Int("partially_applied", report.Partial),
		slog.Int("downgrade_refused", report.Refused),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	}

	if res.Status == entitlement.StatusFailed {
		if report.Err != nil {
			attrs = append(attrs, sl.Err(report.Err))
		}
		log.Error("expiry sweep failed", attrs...)
		render.Status(r, membership.HTTPStatus(res.Status))
		render.JSON(w, r, response.Refused(res.Reason, string(res.Status), report))
		return
	}

	if res.Status == entitlement.StatusPartiallyApplied {
		log.Warn("expiry sweep partially applied", attrs...)
	} else {
		log.Info("expiry sweep completed", attrs...)
	}
	render.JSON(w, r, response.StatusOKWithData(report))
}
