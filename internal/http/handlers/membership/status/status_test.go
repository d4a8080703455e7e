package status

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

	"github.com/magabrotheeeer/membership-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

const userID = "7f1d3c2a-5b6e-4f70-8a91-0b2c3d4e5f60"

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetMembership(ctx context.Context, id string) (*models.User, bool, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *MockCache) FillMembership(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}

func TestHandler_ServeHTTP(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	lapsed := &models.User{ID: userID, Membership: models.Membership{Tier: models.TierSubscription, ExpiresAt: &past}}
	active := &models.User{ID: userID, Membership: models.Membership{Tier: models.TierSubscription, ExpiresAt: &future}}

	tests := []struct {
		name       string
		setupStore func(*MockStore)
		setupCache func(*MockCache)
		wantCode   int
		wantBody   []string
	}{
		{
			name: "из кэша",
			setupCache: func(m *MockCache) {
				m.On("GetMembership", mock.Anything, userID).Return(active, true, nil)
			},
			wantCode: http.StatusOK,
			wantBody: []string{`"membership_type":"subscription"`, `"lapsed":false`},
		},
		{
			name: "промах кэша, истёкшая подписка",
			setupCache: func(m *MockCache) {
				m.On("GetMembership", mock.Anything, userID).Return(nil, false, nil)
				m.On("FillMembership", mock.Anything, lapsed).Return(nil)
			},
			setupStore: func(m *MockStore) {
				m.On("GetUser", mock.Anything, userID).Return(lapsed, nil)
			},
			wantCode: http.StatusOK,
			wantBody: []string{`"membership_type":"free"`, `"lapsed":true`, `"subscription_expires_at":null`},
		},
		{
			name: "кэш недоступен",
			setupCache: func(m *MockCache) {
				m.On("GetMembership", mock.Anything, userID).Return(nil, false, errors.New("redis down"))
				m.On("FillMembership", mock.Anything, active).Return(errors.New("redis down"))
			},
			setupStore: func(m *MockStore) {
				m.On("GetUser", mock.Anything, userID).Return(active, nil)
			},
			wantCode: http.StatusOK,
			wantBody: []string{`"membership_type":"subscription"`},
		},
		{
			name: "пользователь не найден",
			setupCache: func(m *MockCache) {
				m.On("GetMembership", mock.Anything, userID).Return(nil, false, nil)
			},
			setupStore: func(m *MockStore) {
				m.On("GetUser", mock.Anything, userID).Return(nil, models.ErrUserNotFound)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "хранилище недоступно",
			setupCache: func(m *MockCache) {
				m.On("GetMembership", mock.Anything, userID).Return(nil, false, nil)
			},
			setupStore: func(m *MockStore) {
				m.On("GetUser", mock.Anything, userID).Return(nil, errors.New("503"))
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			cache := new(MockCache)
			if tt.setupStore != nil {
				tt.setupStore(store)
			}
			if tt.setupCache != nil {
				tt.setupCache(cache)
			}

			h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), store, cache)
			h.now = func() time.Time { return now }

			req := httptest.NewRequest(http.MethodGet, "/api/v1/membership", nil)
			req = req.WithContext(middlewarectx.WithPrincipal(req.Context(), models.Principal{UserID: userID}))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			for _, want := range tt.wantBody {
				assert.Contains(t, rec.Body.String(), want)
			}
			store.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), new(MockStore), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/membership", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
