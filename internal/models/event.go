package models

import "time"

// MembershipChanged публикуется после того, как реконсилятор записал новое
// членство хотя бы в одно хранилище.
type MembershipChanged struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email,omitempty"`
	PreviousTier Tier       `json:"previous_tier"`
	Tier         Tier       `json:"tier"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Event        string     `json:"event"` // вид события реконсиляции
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Activated сообщает, что пользователь получил платный уровень.
func (e MembershipChanged) Activated() bool {
	return !e.PreviousTier.Paid() && e.Tier.Paid() ||
		e.PreviousTier == TierSubscription && e.Tier == TierLifetime
}

// LapsedToFree сообщает, что подписка закончилась и пользователь переведён на free.
func (e MembershipChanged) LapsedToFree() bool {
	return e.PreviousTier == TierSubscription && e.Tier == TierFree
}
