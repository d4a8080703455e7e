package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/membership-reconciler/internal/config"
)

func TestPolicy(t *testing.T) {
	tests := []struct {
		name       string
		membership config.Membership
		wantBuffer int
		wantPeriod time.Duration
	}{
		{
			name:       "значения по умолчанию",
			membership: config.Membership{RenewalBufferMonths: 1, FallbackPeriodDays: 30},
			wantBuffer: 1,
			wantPeriod: 30 * 24 * time.Hour,
		},
		{
			name:       "буфер отключён",
			membership: config.Membership{RenewalBufferMonths: 1, DisableRenewalBuffer: true, FallbackPeriodDays: 7},
			wantBuffer: 0,
			wantPeriod: 7 * 24 * time.Hour,
		},
		{
			name:       "нулевой резервный период",
			membership: config.Membership{RenewalBufferMonths: 2},
			wantBuffer: 2,
			wantPeriod: 30 * 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy(&config.Config{Membership: tt.membership})
			assert.Equal(t, tt.wantBuffer, p.RenewalBufferMonths)
			assert.Equal(t, tt.wantPeriod, p.FallbackPeriod)
		})
	}
}
