package models

import (
	"fmt"
	"strings"
	"time"
)

// Tier — уровень членства пользователя.
type Tier string

const (
	// TierFree — бесплатный уровень по умолчанию, без платных привилегий.
	TierFree Tier = "free"
	// TierSubscription — ежемесячная подписка, ограниченная датой окончания.
	TierSubscription Tier = "subscription"
	// TierLifetime — бессрочная покупка, терминальное состояние.
	TierLifetime Tier = "lifetime"
)

// ParseTier разбирает строковое значение уровня. Пустая строка не считается
// уровнем free: отсутствие значения считается ошибкой входных данных.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown membership tier %q", s)
	}
	return t, nil
}

// Valid сообщает, является ли значение одним из известных уровней.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierSubscription, TierLifetime:
		return true
	}
	return false
}

// Paid сообщает, даёт ли уровень платный доступ.
func (t Tier) Paid() bool {
	return t == TierSubscription || t == TierLifetime
}

func (t Tier) String() string { return string(t) }

// Membership — пара (уровень, дата окончания), которую реконсилятор
// записывает в оба хранилища.
type Membership struct {
	Tier      Tier       `json:"membership_type"`
	ExpiresAt *time.Time `json:"subscription_expires_at"`
}

// Free возвращает членство уровня free.
func Free() Membership {
	return Membership{Tier: TierFree}
}

// Lapsed сообщает, истекла ли подписка на момент now.
func (m Membership) Lapsed(now time.Time) bool {
	return m.Tier == TierSubscription && m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// Effective возвращает членство с учётом истечения: истёкшая подписка
// трактуется как free.
func (m Membership) Effective(now time.Time) Membership {
	if m.Lapsed(now) {
		return Free()
	}
	return m.Normalize()
}

// Normalize обнуляет дату окончания для уровней, у которых её быть не должно,
// и подставляет free для пустого или неизвестного уровня.
func (m Membership) Normalize() Membership {
	if !m.Tier.Valid() {
		m.Tier = TierFree
	}
	if m.Tier != TierSubscription {
		m.ExpiresAt = nil
	}
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC()
		m.ExpiresAt = &t
	}
	return m
}

// Equal сравнивает два членства с точностью до секунды.
func (m Membership) Equal(o Membership) bool {
	if m.Tier != o.Tier {
		return false
	}
	if m.ExpiresAt == nil || o.ExpiresAt == nil {
		return m.ExpiresAt == nil && o.ExpiresAt == nil
	}
	return m.ExpiresAt.Truncate(time.Second).Equal(o.ExpiresAt.Truncate(time.Second))
}
