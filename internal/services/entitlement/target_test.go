package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

func ptr(t time.Time) *time.Time { return &t }

var (
	testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	free    = models.Free()
	life    = models.Membership{Tier: models.TierLifetime}
)

func sub(exp time.Time) models.Membership {
	return models.Membership{Tier: models.TierSubscription, ExpiresAt: &exp}
}

func TestComputeTarget(t *testing.T) {
	periodEnd := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	policy := DefaultPolicy()

	tests := []struct {
		name    string
		current models.Membership
		event   Event
		policy  Policy
		want    models.Membership
		wantErr error
	}{
		{
			name:    "checkout subscription from free",
			current: free,
			event:   CheckoutCompleted{UserID: "u", Tier: models.TierSubscription},
			want:    sub(time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)),
		},
		{
			name:    "checkout lifetime from free",
			current: free,
			event:   CheckoutCompleted{UserID: "u", Tier: models.TierLifetime},
			want:    life,
		},
		{
			name:    "checkout lifetime from subscription",
			current: sub(periodEnd),
			event:   CheckoutCompleted{UserID: "u", Tier: "Lifetime "},
			want:    life,
		},
		{
			name:    "checkout free is invalid",
			current: free,
			event:   CheckoutCompleted{UserID: "u", Tier: models.TierFree},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "checkout missing metadata",
			current: free,
			event:   CheckoutCompleted{UserID: "u"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "checkout unknown tier",
			current: free,
			event:   CheckoutCompleted{UserID: "u", Tier: "premium"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "renewal adds one month buffer to period end",
			current: sub(testNow.Add(time.Hour)),
			event:   SubscriptionRenewed{UserID: "u", PeriodEnd: &periodEnd},
			want:    sub(time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:    "renewal without period end falls back to 30 days plus buffer",
			current: sub(testNow.Add(time.Hour)),
			event:   SubscriptionRenewed{UserID: "u"},
			want:    sub(time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC)),
		},
		{
			name:    "renewal with buffer disabled",
			current: free,
			event:   SubscriptionRenewed{UserID: "u", PeriodEnd: &periodEnd},
			policy:  Policy{FallbackPeriod: policy.FallbackPeriod},
			want:    sub(periodEnd),
		},
		{
			name:    "cancel keeps subscription until period end",
			current: sub(periodEnd),
			event:   SubscriptionCanceled{UserID: "u", PeriodEnd: &periodEnd},
			want:    sub(periodEnd),
		},
		{
			name:    "cancel from free sets subscription with fallback expiry",
			current: free,
			event:   SubscriptionCanceled{UserID: "u"},
			want:    sub(testNow.Add(30 * 24 * time.Hour)),
		},
		{
			name:    "sweep lapses expired subscription",
			current: sub(testNow.Add(-time.Second)),
			event:   ExpirySweep{Now: testNow},
			want:    free,
		},
		{
			name:    "sweep leaves subscription expiring exactly now",
			current: sub(testNow),
			event:   ExpirySweep{Now: testNow},
			want:    sub(testNow),
		},
		{
			name:    "sweep leaves valid subscription",
			current: sub(periodEnd),
			event:   ExpirySweep{Now: testNow},
			want:    sub(periodEnd),
		},
		{
			name:    "sweep on free is a no-op",
			current: free,
			event:   ExpirySweep{Now: testNow},
			want:    free,
		},
		{
			name:    "override to subscription without expiry",
			current: free,
			event:   ManualOverride{UserID: "u", Tier: models.TierSubscription},
			want:    sub(time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)),
		},
		{
			name:    "override to subscription with explicit expiry",
			current: free,
			event:   ManualOverride{UserID: "u", Tier: models.TierSubscription, ExpiresAt: &periodEnd},
			want:    sub(periodEnd),
		},
		{
			name:    "override with past expiry",
			current: free,
			event:   ManualOverride{UserID: "u", Tier: models.TierSubscription, ExpiresAt: ptr(testNow.Add(-time.Hour))},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "override to free drops expiry",
			current: sub(periodEnd),
			event:   ManualOverride{UserID: "u", Tier: models.TierFree, ExpiresAt: &periodEnd},
			want:    free,
		},
		{
			name:    "override with missing tier",
			current: free,
			event:   ManualOverride{UserID: "u"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "missing user id",
			current: free,
			event:   SubscriptionRenewed{},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "nil event",
			current: free,
			event:   nil,
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := policy
			if tt.policy != (Policy{}) {
				p = tt.policy
			}
			got, err := ComputeTarget(tt.current, tt.event, testNow, p)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %+v got %+v", tt.want, got)
		})
	}
}

func TestComputeTarget_LifetimeIsTerminal(t *testing.T) {
	periodEnd := testNow.AddDate(0, 1, 0)
	refused := []Event{
		CheckoutCompleted{UserID: "u", Tier: models.TierSubscription},
		SubscriptionRenewed{UserID: "u", PeriodEnd: &periodEnd},
		SubscriptionCanceled{UserID: "u", PeriodEnd: &periodEnd},
		ExpirySweep{Now: testNow.AddDate(10, 0, 0)},
		ManualOverride{UserID: "u", Tier: models.TierFree},
		ManualOverride{UserID: "u", Tier: models.TierSubscription, ExpiresAt: &periodEnd},
	}
	for _, ev := range refused {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			got, err := ComputeTarget(life, ev, testNow, DefaultPolicy())
			require.ErrorIs(t, err, ErrDowngradeRefused)
			assert.Equal(t, models.TierLifetime, got.Tier)
			assert.Nil(t, got.ExpiresAt)
		})
	}

	allowed := []Event{
		CheckoutCompleted{UserID: "u", Tier: models.TierLifetime},
		ManualOverride{UserID: "u", Tier: models.TierLifetime},
	}
	for _, ev := range allowed {
		got, err := ComputeTarget(life, ev, testNow, DefaultPolicy())
		require.NoError(t, err)
		assert.True(t, life.Equal(got))
	}
}

func TestComputeTarget_CheckoutIsOneCalendarMonth(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2028, 2, 29, 8, 30, 0, 0, time.UTC),
	}
	for _, now := range times {
		got, err := ComputeTarget(free, CheckoutCompleted{UserID: "u", Tier: models.TierSubscription}, now, DefaultPolicy())
		require.NoError(t, err)
		require.NotNil(t, got.ExpiresAt)
		assert.Equal(t, models.TierSubscription, got.Tier)
		assert.Equal(t, now.AddDate(0, 1, 0), *got.ExpiresAt)
		assert.True(t, got.ExpiresAt.After(now))
	}
}

func TestComputeTarget_NormalizesCurrent(t *testing.T) {
	exp := testNow.AddDate(0, 2, 0)
	got, err := ComputeTarget(models.Membership{Tier: "garbage", ExpiresAt: &exp}, ExpirySweep{Now: testNow}, testNow, DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, free.Equal(got))
}
