// Package webhook принимает события Stripe, проверяет подпись и переводит
// события оплаты и подписки в события реконсиляции членства.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/handlers/membership"
	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

const maxBodyBytes = 64 << 10

// Типы событий Stripe, влияющие на членство.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
)

// Результаты обработки для метрик.
const (
	OutcomeRejected = "rejected"
	OutcomeIgnored  = "ignored"
)

// Verifier проверяет подпись и разбирает событие.
type Verifier interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// Service применяет событие реконсиляции.
type Service interface {
	Reconcile(ctx context.Context, ev entitlement.Event) entitlement.Result
}

// Observer учитывает входящие события.
type Observer interface {
	ObserveWebhook(eventType, outcome string)
}

// PeriodLookup читает конец текущего периода подписки у провайдера.
type PeriodLookup interface {
	SubscriptionPeriodEnd(ctx context.Context, id string) (*time.Time, error)
}

// Handler обрабатывает POST /api/v1/stripe/webhook.
type Handler struct {
	log      *slog.Logger
	verifier Verifier
	service  Service
	observer Observer
	periods  PeriodLookup
}

// Option настраивает Handler.
type Option func(*Handler)

// WithPeriodLookup включает дозапрос конца периода, если событие подписки его не содержит.
func WithPeriodLookup(p PeriodLookup) Option {
	return func(h *Handler) { h.periods = p }
}

// New создаёт Handler. observer может быть nil.
func New(log *slog.Logger, verifier Verifier, service Service, observer Observer, opts ...Option) *Handler {
	h := &Handler{
		log:      log,
		verifier: verifier,
		service:  service,
		observer: observer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP проверяет подпись до разбора тела; неподписанные события
// до реконсилятора не доходят.
// @Summary Вебхук Stripe
// @Description Принимает подписанные события Stripe и переводит их в события реконсиляции.
// @Tags Stripe
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись Stripe"
// @Success 200 {object} response.Response "Событие обработано или проигнорировано"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело события"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 500 {object} response.ErrorResponse "Не удалось записать членство"
// @Router /stripe/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.membership.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		h.observe("unknown", OutcomeRejected)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read request body"))
		return
	}

	ev, err := h.verifier.ConstructEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Warn("webhook signature verification failed", sl.Err(err))
		h.observe("unknown", OutcomeRejected)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}
	log = log.With(slog.String("event_id", ev.ID), slog.String("event_type", string(ev.Type)))

	recEvent, err := translate(ev)
	if err != nil {
		log.Warn("malformed webhook event", sl.Err(err))
		h.observe(string(ev.Type), OutcomeRejected)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("malformed event payload"))
		return
	}
	if recEvent == nil {
		log.Info("ignored webhook event")
		h.observe(string(ev.Type), OutcomeIgnored)
		render.JSON(w, r, response.StatusOKWithData(map[string]any{"received": true, "ignored": true}))
		return
	}

	recEvent = h.completePeriodEnd(r.Context(), log, ev, recEvent)

	res := h.service.Reconcile(r.Context(), recEvent)
	h.observe(string(ev.Type), string(res.Status))
	membership.RenderResult(w, r, log, res, true)
}

func (h *Handler) observe(eventType, outcome string) {
	if h.observer != nil {
		h.observer.ObserveWebhook(eventType, outcome)
	}
}

// completePeriodEnd дочитывает конец периода у провайдера. При ошибке событие
// остаётся без даты и реконсилятор берёт запасной период.
func (h *Handler) completePeriodEnd(ctx context.Context, log *slog.Logger, ev stripe.Event, recEvent entitlement.Event) entitlement.Event {
	if h.periods == nil {
		return recEvent
	}
	lookup := func() *time.Time {
		var s paymentprovider.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil || s.ID == "" {
			return nil
		}
		end, err := h.periods.SubscriptionPeriodEnd(ctx, s.ID)
		if err != nil {
			log.Warn("failed to look up subscription period end", slog.String("subscription_id", s.ID), sl.Err(err))
			return nil
		}
		return end
	}

	switch e := recEvent.(type) {
	case entitlement.SubscriptionRenewed:
		if e.PeriodEnd == nil {
			e.PeriodEnd = lookup()
		}
		return e
	case entitlement.SubscriptionCanceled:
		if e.PeriodEnd == nil {
			e.PeriodEnd = lookup()
		}
		return e
	}
	return recEvent
}

var errNoObject = errors.New("event has no data object")

// translate возвращает nil без ошибки для событий, которые членство не меняют.
func translate(ev stripe.Event) (entitlement.Event, error) {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, errNoObject
	}

	switch string(ev.Type) {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
		var s paymentprovider.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, err
		}
		// Отложенные способы оплаты приходят повторно через async_payment_succeeded.
		if !s.Paid() {
			return nil, nil
		}
		return entitlement.CheckoutCompleted{
			UserID: s.UserID(),
			Tier:   models.Tier(strings.ToLower(s.Tier())),
			Proof:  s.ID,
		}, nil

	case EventSubscriptionUpdated:
		var s paymentprovider.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, err
		}
		if s.CancelAtPeriodEnd {
			return entitlement.SubscriptionCanceled{UserID: s.UserID(), PeriodEnd: s.PeriodEnd()}, nil
		}
		switch s.Status {
		case "active", "trialing":
			return entitlement.SubscriptionRenewed{UserID: s.UserID(), PeriodEnd: s.PeriodEnd()}, nil
		}
		return nil, nil

	case EventSubscriptionDeleted:
		var s paymentprovider.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, err
		}
		return entitlement.SubscriptionCanceled{UserID: s.UserID(), PeriodEnd: s.PeriodEnd()}, nil
	}
	return nil, nil
}
