package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

const userID = "7f1d3c2a-5b6e-4f70-8a91-0b2c3d4e5f60"

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CheckoutSession(ctx context.Context, id string) (*paymentprovider.Payment, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*paymentprovider.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockService struct {
	mock.Mock
}

func (m *MockService) Reconcile(ctx context.Context, ev entitlement.Event) entitlement.Result {
	args := m.Called(ctx, ev)
	return args.Get(0).(entitlement.Result)
}

func TestHandler_ServeHTTP(t *testing.T) {
	exp := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		anonymous     bool
		body          string
		setupProvider func(*MockProvider)
		setupService  func(*MockService)
		wantCode      int
		wantBody      string
	}{
		{
			name:      "без аутентификации",
			anonymous: true,
			body:      `{"session_id":"cs_1"}`,
			wantCode:  http.StatusUnauthorized,
		},
		{
			name:     "битый JSON",
			body:     `{"session_id":`,
			wantCode: http.StatusBadRequest,
			wantBody: "failed to decode request",
		},
		{
			name:     "пустой session_id",
			body:     `{"session_id":"  "}`,
			wantCode: http.StatusBadRequest,
			wantBody: "field SessionID is a required field",
		},
		{
			name: "сессия не найдена",
			body: `{"session_id":"cs_missing"}`,
			setupProvider: func(m *MockProvider) {
				m.On("CheckoutSession", mock.Anything, "cs_missing").
					Return(nil, fmt.Errorf("op: %w", paymentprovider.ErrNotFound))
			},
			wantCode: http.StatusBadRequest,
			wantBody: "unknown checkout session",
		},
		{
			name: "провайдер недоступен",
			body: `{"session_id":"cs_1"}`,
			setupProvider: func(m *MockProvider) {
				m.On("CheckoutSession", mock.Anything, "cs_1").Return(nil, errors.New("timeout"))
			},
			wantCode: http.StatusInternalServerError,
		},
		{
			name: "не оплачено",
			body: `{"session_id":"cs_1"}`,
			setupProvider: func(m *MockProvider) {
				m.On("CheckoutSession", mock.Anything, "cs_1").
					Return(&paymentprovider.Payment{ID: "cs_1", UserID: userID, Tier: "subscription", Status: "unpaid"}, nil)
			},
			wantCode: http.StatusBadRequest,
			wantBody: `"reason":"payment_not_completed"`,
		},
		{
			name: "чужая сессия",
			body: `{"session_id":"cs_1"}`,
			setupProvider: func(m *MockProvider) {
				m.On("CheckoutSession", mock.Anything, "cs_1").
					Return(&paymentprovider.Payment{ID: "cs_1", UserID: "someone-else", Tier: "subscription", Paid: true}, nil)
			},
			wantCode: http.StatusForbidden,
		},
		{
			name: "оплаченная подписка",
			body: `{"session_id":"cs_1"}`,
			setupProvider: func(m *MockProvider) {
				m.On("CheckoutSession", mock.Anything, "cs_1").
					Return(&paymentprovider.Payment{ID: "cs_1", UserID: userID, Tier: "Subscription", Paid: true}, nil)
			},
			setupService: func(m *MockService) {
				m.On("Reconcile", mock.Anything, entitlement.CheckoutCompleted{
					UserID: userID, Tier: models.TierSubscription, Proof: "cs_1",
				}).Return(entitlement.Result{
					UserID: userID, Status: entitlement.StatusApplied, Tier: models.TierSubscription, ExpiresAt: &exp,
				})
			},
			wantCode: http.StatusOK,
			wantBody: `"membership_type":"subscription"`,
		},
		{
			name: "сессия без пользователя в метаданных",
			body: `{"session_id":"cs_2"}`,
			setupProvider: func(m *MockProvider) {
				m.On("CheckoutSession", mock.Anything, "cs_2").
					Return(&paymentprovider.Payment{ID: "cs_2", Tier: "lifetime", Paid: true}, nil)
			},
			setupService: func(m *MockService) {
				m.On("Reconcile", mock.Anything, entitlement.CheckoutCompleted{
					UserID: userID, Tier: models.TierLifetime, Proof: "cs_2",
				}).Return(entitlement.Result{UserID: userID, Status: entitlement.StatusApplied, Tier: models.TierLifetime})
			},
			wantCode: http.StatusOK,
			wantBody: `"membership_type":"lifetime"`,
		},
		{
			name: "нет уровня в метаданных",
			body: `{"session_id":"cs_3"}`,
			setupProvider: func(m *MockProvider) {
				m.On("CheckoutSession", mock.Anything, "cs_3").
					Return(&paymentprovider.Payment{ID: "cs_3", UserID: userID, Paid: true}, nil)
			},
			setupService: func(m *MockService) {
				m.On("Reconcile", mock.Anything, mock.Anything).Return(entitlement.Result{
					UserID: userID, Status: entitlement.StatusInvalidInput, Reason: "payment metadata: unknown membership tier \"\"",
				})
			},
			wantCode: http.StatusBadRequest,
			wantBody: `"reason":"invalid_input"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockProvider)
			svc := new(MockService)
			if tt.setupProvider != nil {
				tt.setupProvider(provider)
			}
			if tt.setupService != nil {
				tt.setupService(svc)
			}

			h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), provider, svc)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/membership/verify-session", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if !tt.anonymous {
				req = req.WithContext(middlewarectx.WithPrincipal(req.Context(), models.Principal{UserID: userID}))
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			provider.AssertExpectations(t)
			svc.AssertExpectations(t)
			if tt.setupService == nil {
				svc.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
			}
		})
	}
}
