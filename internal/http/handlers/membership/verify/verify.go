// Package verify реализует синхронную проверку checkout‑сессии после
// возврата пользователя со страницы оплаты.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

// Request — тело запроса.
type Request struct {
	SessionID string `json:"session_id" validate:"required"`
}

// Provider читает checkout‑сессию у платёжного провайдера.
type Provider interface {
	CheckoutSession(ctx context.Context, id string) (*paymentprovider.Payment, error)
}

// Service применяет событие реконсиляции.
type Service interface {
	Reconcile(ctx context.Context, ev entitlement.Event) entitlement.Result
}

// Handler обрабатывает POST /api/v1/membership/verify-session.
type Handler struct {
	log      *slog.Logger
	provider Provider
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, provider Provider, service Service) *Handler {
	return &Handler{
		log:      log,
		provider: provider,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP переводит сессию в CheckoutCompleted, только если провайдер
// подтвердил оплату и сессия принадлежит вызывающему.
// @Summary Подтвердить checkout-сессию
// @Description Синхронно применяет оплату после возврата пользователя со страницы Stripe.
// @Tags Membership
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body verify.Request true "ID checkout-сессии"
// @Success 200 {object} response.Response "Членство обновлено"
// @Failure 400 {object} response.ErrorResponse "Оплата не завершена или неверный запрос"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Сессия принадлежит другому пользователю"
// @Failure 500 {object} response.ErrorResponse "Ошибка провайдера или хранилищ"
// @Router /membership/verify-session [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.membership.verify"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	principal, ok := middlewarectx.PrincipalFrom(r.Context())
	if !ok {
		log.Warn("user identification missing")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}
	log = log.With(sl.UserID(principal.UserID))

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := h.validate.Struct(req); err != nil {
		var validateErr validator.ValidationErrors
		if errors.As(err, &validateErr) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	payment, err := h.provider.CheckoutSession(r.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, paymentprovider.ErrNotFound) {
			log.Warn("checkout session not found", slog.String("session_id", req.SessionID))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown checkout session"))
			return
		}
		log.Error("failed to retrieve checkout session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not verify payment"))
		return
	}

	if !payment.Paid {
		log.Info("checkout session not paid", slog.String("payment_status", payment.Status))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Refused("payment not completed", "payment_not_completed", nil))
		return
	}

	userID := payment.UserID
	if userID == "" {
		userID = principal.UserID
	}
	if userID != principal.UserID {
		log.Warn("checkout session belongs to another user", slog.String("session_user_id", userID))
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("checkout session belongs to another user"))
		return
	}

	res := h.service.Reconcile(r.Context(), entitlement.CheckoutCompleted{
		UserID: userID,
		Tier:   models.Tier(strings.ToLower(payment.Tier)),
		Proof:  payment.ID,
	})
	membership.RenderResult(w, r, log, res, false)
}
