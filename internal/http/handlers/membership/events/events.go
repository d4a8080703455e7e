// Package events отдаёт администратору последние события Stripe для диагностики.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
)

// Provider читает последние события.
type Provider interface {
	RecentEvents(ctx context.Context, limit int) ([]paymentprovider.EventSummary, error)
}

// Handler обрабатывает GET /api/v1/admin/stripe/events.
type Handler struct {
	log      *slog.Logger
	provider Provider
}

// New создаёт Handler.
func New(log *slog.Logger, provider Provider) *Handler {
	return &Handler{
		log:      log,
		provider: provider,
	}
}

// @Summary Последние события Stripe
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param limit query int false "Количество (1-100)"
// @Success 200 {object} response.Response
// @Router /admin/stripe/events [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.membership.events"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	evs, err := h.provider.RecentEvents(r.Context(), limit)
	if err != nil {
		log.Error("failed to list stripe events", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list payment events"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"events": evs,
	}))
}
