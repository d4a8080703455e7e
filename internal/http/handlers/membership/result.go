// Package membership содержит общее для HTTP‑обработчиков членства:
// перевод результата реконсиляции в HTTP‑статус и тело ответа.
// Сами обработчики лежат в подпакетах, по одному на маршрут.
package membership

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

// View — членство в ответе клиенту.
type View struct {
	Status    entitlement.Status `json:"status"`
	Tier      models.Tier        `json:"membership_type"`
	ExpiresAt *time.Time         `json:"subscription_expires_at"`
}

// HTTPStatus возвращает код ответа для результата реконсиляции.
// Частичное применение считается успехом: хотя бы одно хранилище приняло запись.
func HTTPStatus(status entitlement.Status) int {
	switch status {
	case entitlement.StatusApplied, entitlement.StatusPartiallyApplied:
		return http.StatusOK
	case entitlement.StatusDowngradeRefused, entitlement.StatusInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RenderResult пишет ответ по результату. С detailed=true в тело попадает
// полный Result, включая хранилище, в которое запись не прошла; иначе только View.
func RenderResult(w http.ResponseWriter, r *http.Request, log *slog.Logger, res entitlement.Result, detailed bool) {
	code := HTTPStatus(res.Status)

	var data any = View{Status: res.Status, Tier: res.Tier, ExpiresAt: res.ExpiresAt}
	if detailed {
		data = res
	}

	attrs := []any{
		sl.UserID(res.UserID),
		slog.String("event", string(res.Event)),
		slog.String("status", string(res.Status)),
	}
	if res.FailedStore != "" {
		attrs = append(attrs, slog.String("failed_store", string(res.FailedStore)))
	}
	if res.Err != nil {
		attrs = append(attrs, sl.Err(res.Err))
	}

	render.Status(r, code)
	switch res.Status {
	case entitlement.StatusApplied:
		log.Info("membership reconciled", attrs...)
		render.JSON(w, r, response.StatusOKWithData(data))
	case entitlement.StatusPartiallyApplied:
		log.Warn("membership partially applied", attrs...)
		render.JSON(w, r, response.StatusOKWithData(data))
	case entitlement.StatusDowngradeRefused:
		log.Warn("membership downgrade refused", attrs...)
		render.JSON(w, r, response.Refused(entitlement.ErrDowngradeRefused.Error(), string(res.Status), data))
	case entitlement.StatusInvalidInput:
		log.Warn("membership event rejected", attrs...)
		render.JSON(w, r, response.Refused(reasonOr(res.Reason, "invalid input"), string(res.Status), nil))
	default:
		log.Error("membership reconciliation failed", attrs...)
		render.JSON(w, r, response.Refused("could not update membership", string(entitlement.StatusFailed), nil))
	}
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
