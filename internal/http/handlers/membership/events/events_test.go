package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) RecentEvents(ctx context.Context, limit int) ([]paymentprovider.EventSummary, error) {
	args := m.Called(ctx, limit)
	if evs := args.Get(0); evs != nil {
		return evs.([]paymentprovider.EventSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestHandler_ServeHTTP(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		url       string
		setupMock func(*MockProvider)
		wantCode  int
		wantBody  string
	}{
		{
			name: "по умолчанию 20",
			url:  "/api/v1/admin/stripe/events",
			setupMock: func(m *MockProvider) {
				m.On("RecentEvents", mock.Anything, 20).Return([]paymentprovider.EventSummary{
					{ID: "evt_1", Type: "checkout.session.completed", Created: created},
				}, nil)
			},
			wantCode: http.StatusOK,
			wantBody: `"type":"checkout.session.completed"`,
		},
		{
			name: "явный limit",
			url:  "/api/v1/admin/stripe/events?limit=5",
			setupMock: func(m *MockProvider) {
				m.On("RecentEvents", mock.Anything, 5).Return([]paymentprovider.EventSummary{}, nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name:     "limit вне диапазона",
			url:      "/api/v1/admin/stripe/events?limit=500",
			wantCode: http.StatusBadRequest,
		},
		{
			name: "ошибка провайдера",
			url:  "/api/v1/admin/stripe/events",
			setupMock: func(m *MockProvider) {
				m.On("RecentEvents", mock.Anything, 20).Return(nil, errors.New("stripe down"))
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockProvider)
			if tt.setupMock != nil {
				tt.setupMock(provider)
			}
			h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), provider)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			provider.AssertExpectations(t)
		})
	}
}
