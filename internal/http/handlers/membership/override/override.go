// Package override реализует ручную корректировку членства администратором.
//
// Уровень задаётся явно либо определяется по метаданным checkout‑сессии
// или payment intent, если вместо уровня передан их идентификатор.
package override

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

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

// Request — тело запроса корректировки.
type Request struct {
	UserID           string     `json:"user_id" validate:"required,uuid"`
	Tier             string     `json:"membership_type,omitempty"`
	ExpiresAt        *time.Time `json:"subscription_expires_at,omitempty"`
	PaymentSessionID string     `json:"payment_session_id,omitempty"`
	PaymentIntentID  string     `json:"payment_intent_id,omitempty"`
}

// Provider читает подтверждения оплаты у провайдера.
type Provider interface {
	CheckoutSession(ctx context.Context, id string) (*paymentprovider.Payment, error)
	PaymentIntent(ctx context.Context, id string) (*paymentprovider.Payment, error)
}

// Service применяет событие реконсиляции.
type Service interface {
	Reconcile(ctx context.Context, ev entitlement.Event) entitlement.Result
}

// Handler обрабатывает POST /api/v1/admin/membership/override.
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

type refusal struct {
	code   int
	msg    string
	reason string
}

func (e *refusal) Error() string { return e.msg }

// ServeHTTP проверяет запрос, при необходимости разрешает уровень у провайдера
// и применяет ManualOverride.
// @Summary Ручная корректировка членства
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body override.Request true "Пользователь и уровень"
// @Success 200 {object} response.Response "Членство обновлено"
// @Failure 400 {object} response.ErrorResponse "Неверный запрос или отказ в понижении"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Нет прав администратора"
// @Failure 500 {object} response.ErrorResponse "Ошибка провайдера или хранилищ"
// @Router /admin/membership/override [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.membership.override"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	if admin, ok := middlewarectx.PrincipalFrom(r.Context()); ok {
		log = log.With(slog.String("admin_id", admin.UserID))
	}

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
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
	log = log.With(sl.UserID(req.UserID))

	tier, proof, err := h.resolveTier(r.Context(), req)
	if err != nil {
		var ref *refusal
		if errors.As(err, &ref) {
			log.Warn("override refused", slog.String("reason", ref.reason), sl.Err(err))
			render.Status(r, ref.code)
			render.JSON(w, r, response.Refused(ref.msg, ref.reason, nil))
			return
		}
		log.Error("failed to resolve tier from payment", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not retrieve payment"))
		return
	}

	res := h.service.Reconcile(r.Context(), entitlement.ManualOverride{
		UserID:    req.UserID,
		Tier:      tier,
		ExpiresAt: req.ExpiresAt,
		Proof:     proof,
	})
	membership.RenderResult(w, r, log, res, true)
}

func (h *Handler) resolveTier(ctx context.Context, req Request) (models.Tier, string, error) {
	if t := strings.TrimSpace(req.Tier); t != "" {
		return models.Tier(strings.ToLower(t)), firstNonEmpty(req.PaymentSessionID, req.PaymentIntentID), nil
	}

	var (
		payment *paymentprovider.Payment
		err     error
	)
	switch {
	case strings.TrimSpace(req.PaymentSessionID) != "":
		payment, err = h.provider.CheckoutSession(ctx, strings.TrimSpace(req.PaymentSessionID))
	case strings.TrimSpace(req.PaymentIntentID) != "":
		payment, err = h.provider.PaymentIntent(ctx, strings.TrimSpace(req.PaymentIntentID))
	default:
		return "", "", &refusal{
			code:   http.StatusBadRequest,
			msg:    "membership_type or a payment reference is required",
			reason: string(entitlement.StatusInvalidInput),
		}
	}
	if err != nil {
		if errors.Is(err, paymentprovider.ErrNotFound) {
			return "", "", &refusal{code: http.StatusBadRequest, msg: "unknown payment reference", reason: string(entitlement.StatusInvalidInput)}
		}
		return "", "", err
	}

	if payment.Tier == "" {
		return "", "", &refusal{code: http.StatusBadRequest, msg: "payment has no membership_type metadata", reason: "missing_payment_metadata"}
	}
	if payment.UserID != "" && payment.UserID != req.UserID {
		return "", "", &refusal{code: http.StatusBadRequest, msg: "payment belongs to another user", reason: "payment_user_mismatch"}
	}
	return models.Tier(strings.ToLower(payment.Tier)), payment.ID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
