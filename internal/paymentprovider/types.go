package paymentprovider

import (
	"strings"
	"time"
)

// Ключи метаданных, которые сайт кладёт в checkout‑сессию, payment intent и подписку.
const (
	MetadataUserID = "user_id"
	MetadataTier   = "membership_type"
)

// Payment — подтверждение оплаты (checkout‑сессия или payment intent) с уровнем из метаданных.
type Payment struct {
	ID     string
	UserID string
	Tier   string
	Paid   bool
	Status string
}

// EventSummary — краткое описание события Stripe для диагностики.
type EventSummary struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  time.Time `json:"created"`
	Livemode bool      `json:"livemode"`
}

// CheckoutSession — минимальное представление объекта checkout.session из вебхука.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// UserID возвращает пользователя из метаданных или client_reference_id.
func (s CheckoutSession) UserID() string {
	return userIDFrom(s.Metadata, s.ClientReferenceID)
}

// Tier возвращает уровень из метаданных сессии.
func (s CheckoutSession) Tier() string {
	return strings.TrimSpace(s.Metadata[MetadataTier])
}

// Paid сообщает, подтверждена ли оплата сессии.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

// Subscription — минимальное представление объекта subscription из вебхука.
// current_period_end в новых версиях API находится на элементах подписки.
type Subscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// UserID возвращает пользователя из метаданных подписки.
func (s Subscription) UserID() string {
	return userIDFrom(s.Metadata, "")
}

// PeriodEnd возвращает конец текущего оплаченного периода или nil, если провайдер его не прислал.
func (s Subscription) PeriodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	return unixPtr(end)
}

func userIDFrom(meta map[string]string, fallback string) string {
	for _, key := range []string{MetadataUserID, "userId", "supabase_user_id"} {
		if v := strings.TrimSpace(meta[key]); v != "" {
			return v
		}
	}
	return strings.TrimSpace(fallback)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
