// Package paymentprovider — обёртка над stripe-go: проверка подписи вебхуков,
// чтение checkout‑сессий, payment intent и подписок, список последних событий.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/event"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	// ErrNotFound — объекта с таким идентификатором у провайдера нет.
	ErrNotFound = errors.New("payment object not found")
	// ErrInvalidSignature — подпись вебхука не прошла проверку.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Client обращается к Stripe API. Функции stripe-go подменяются в тестах.
type Client struct {
	webhookSecret string

	getCheckoutSession func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getPaymentIntent   func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getSubscription    func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	listEvents         func(params *stripe.EventListParams) eventIterator
}

type eventIterator interface {
	Next() bool
	Event() *stripe.Event
	Err() error
}

// NewClient настраивает stripe-go ключом secretKey.
func NewClient(secretKey, webhookSecret string) *Client {
	stripe.Key = strings.TrimSpace(secretKey)
	return &Client{
		webhookSecret:      strings.TrimSpace(webhookSecret),
		getCheckoutSession: stripesession.Get,
		getPaymentIntent:   paymentintent.Get,
		getSubscription:    subscription.Get,
		listEvents: func(params *stripe.EventListParams) eventIterator {
			return event.List(params)
		},
	}
}

// ConstructEvent проверяет подпись Stripe-Signature и разбирает событие.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c.webhookSecret == "" || strings.TrimSpace(sigHeader) == "" {
		return stripe.Event{}, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ev, nil
}

// CheckoutSession возвращает оплату по идентификатору checkout‑сессии.
func (c *Client) CheckoutSession(ctx context.Context, id string) (*Payment, error) {
	const op = "paymentprovider.CheckoutSession"
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := c.getCheckoutSession(id, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return &Payment{
		ID:     s.ID,
		UserID: userIDFrom(s.Metadata, s.ClientReferenceID),
		Tier:   strings.TrimSpace(s.Metadata[MetadataTier]),
		Paid:   s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Status: string(s.PaymentStatus),
	}, nil
}

// PaymentIntent возвращает оплату по идентификатору payment intent.
func (c *Client) PaymentIntent(ctx context.Context, id string) (*Payment, error) {
	const op = "paymentprovider.PaymentIntent"
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.getPaymentIntent(id, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return &Payment{
		ID:     pi.ID,
		UserID: userIDFrom(pi.Metadata, ""),
		Tier:   strings.TrimSpace(pi.Metadata[MetadataTier]),
		Paid:   pi.Status == stripe.PaymentIntentStatusSucceeded,
		Status: string(pi.Status),
	}, nil
}

// SubscriptionPeriodEnd возвращает конец текущего периода подписки.
func (c *Client) SubscriptionPeriodEnd(ctx context.Context, id string) (*time.Time, error) {
	const op = "paymentprovider.SubscriptionPeriodEnd"
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.getSubscription(id, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	var end int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	return unixPtr(end), nil
}

// RecentEvents возвращает не более limit последних событий.
func (c *Client) RecentEvents(ctx context.Context, limit int) ([]EventSummary, error) {
	const op = "paymentprovider.RecentEvents"
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	params := &stripe.EventListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	it := c.listEvents(params)
	out := make([]EventSummary, 0, limit)
	for len(out) < limit && it.Next() {
		ev := it.Event()
		out = append(out, EventSummary{
			ID:       ev.ID,
			Type:     string(ev.Type),
			Created:  time.Unix(ev.Created, 0).UTC(),
			Livemode: ev.Livemode,
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return out, nil
}

func mapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
		return fmt.Errorf("%w: %s", ErrNotFound, stripeErr.Msg)
	}
	return err
}
