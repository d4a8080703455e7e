package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

var (
	// ErrDowngradeRefused — попытка понизить пользователя с уровнем lifetime.
	ErrDowngradeRefused = errors.New("lifetime membership cannot be downgraded")
	// ErrInvalidInput — событие не содержит обязательных данных или содержит неизвестный уровень.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserNotFound — пользователя нет в хранилище идентичностей.
	ErrUserNotFound = models.ErrUserNotFound
)

// Policy — настраиваемые параметры вычисления целевого членства.
type Policy struct {
	// RenewalBufferMonths добавляется к концу периода при продлении.
	RenewalBufferMonths int
	// FallbackPeriod используется, когда провайдер не прислал конец периода.
	FallbackPeriod time.Duration
}

// DefaultPolicy воспроизводит поведение сайта: буфер в один месяц и 30 дней по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		RenewalBufferMonths: 1,
		FallbackPeriod:      30 * 24 * time.Hour,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ComputeTarget возвращает членство, которое должно быть записано после события ev.
// Функция не обращается к хранилищам; now задаёт момент обработки события.
func ComputeTarget(current models.Membership, ev Event, now time.Time, p Policy) (models.Membership, error) {
	current = current.Normalize()
	now = now.UTC()

	var target models.Membership
	switch e := ev.(type) {
	case CheckoutCompleted:
		if e.UserID == "" {
			return models.Membership{}, invalid("user id is required")
		}
		tier, err := models.ParseTier(string(e.Tier))
		if err != nil {
			return models.Membership{}, invalid("payment metadata: %v", err)
		}
		switch tier {
		case models.TierSubscription:
			exp := now.AddDate(0, 1, 0)
			target = models.Membership{Tier: tier, ExpiresAt: &exp}
		case models.TierLifetime:
			target = models.Membership{Tier: tier}
		default:
			return models.Membership{}, invalid("tier %q cannot be purchased", tier)
		}

	case SubscriptionRenewed:
		if e.UserID == "" {
			return models.Membership{}, invalid("user id is required")
		}
		exp := periodEnd(e.PeriodEnd, now, p).AddDate(0, p.RenewalBufferMonths, 0)
		target = models.Membership{Tier: models.TierSubscription, ExpiresAt: &exp}

	case SubscriptionCanceled:
		if e.UserID == "" {
			return models.Membership{}, invalid("user id is required")
		}
		exp := periodEnd(e.PeriodEnd, now, p)
		target = models.Membership{Tier: models.TierSubscription, ExpiresAt: &exp}

	case ManualOverride:
		if e.UserID == "" {
			return models.Membership{}, invalid("user id is required")
		}
		tier, err := models.ParseTier(string(e.Tier))
		if err != nil {
			return models.Membership{}, invalid("%v", err)
		}
		target = models.Membership{Tier: tier}
		if tier == models.TierSubscription {
			exp := now.AddDate(0, 1, 0)
			if e.ExpiresAt != nil {
				if !e.ExpiresAt.After(now) {
					return models.Membership{}, invalid("subscription expiry %s is not in the future", e.ExpiresAt.UTC().Format(time.RFC3339))
				}
				exp = e.ExpiresAt.UTC()
			}
			target.ExpiresAt = &exp
		}

	case ExpirySweep:
		// очистка никогда не выбирает lifetime явно
		if current.Tier == models.TierLifetime {
			return current, ErrDowngradeRefused
		}
		target = current
		if current.Tier == models.TierSubscription && current.ExpiresAt != nil && current.ExpiresAt.Before(now) {
			target = models.Free()
		}

	case nil:
		return models.Membership{}, invalid("event is required")

	default:
		return models.Membership{}, invalid("unsupported event %T", ev)
	}

	if current.Tier == models.TierLifetime && target.Tier != models.TierLifetime {
		return current, ErrDowngradeRefused
	}
	return target.Normalize(), nil
}

func periodEnd(reported *time.Time, now time.Time, p Policy) time.Time {
	if reported != nil && !reported.IsZero() {
		return reported.UTC()
	}
	return now.Add(p.FallbackPeriod)
}
