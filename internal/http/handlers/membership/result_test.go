package membership

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/membership-reconciler/internal/http/response"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

func TestRenderResult(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	exp := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		res        entitlement.Result
		detailed   bool
		wantCode   int
		wantStatus string
		wantReason string
	}{
		{
			name:       "применено",
			res:        entitlement.Result{Status: entitlement.StatusApplied, Tier: models.TierSubscription, ExpiresAt: &exp},
			wantCode:   http.StatusOK,
			wantStatus: response.StatusOK,
		},
		{
			name:       "частично применено",
			res:        entitlement.Result{Status: entitlement.StatusPartiallyApplied, FailedStore: entitlement.StoreRelational},
			detailed:   true,
			wantCode:   http.StatusOK,
			wantStatus: response.StatusOK,
		},
		{
			name:       "отказ в понижении",
			res:        entitlement.Result{Status: entitlement.StatusDowngradeRefused, Tier: models.TierLifetime},
			wantCode:   http.StatusBadRequest,
			wantStatus: response.StatusError,
			wantReason: "downgrade_refused",
		},
		{
			name:       "неверный ввод",
			res:        entitlement.Result{Status: entitlement.StatusInvalidInput, Reason: "user id is required"},
			wantCode:   http.StatusBadRequest,
			wantStatus: response.StatusError,
			wantReason: "invalid_input",
		},
		{
			name:       "оба хранилища недоступны",
			res:        entitlement.Result{Status: entitlement.StatusFailed, Err: errors.New("boom")},
			wantCode:   http.StatusInternalServerError,
			wantStatus: response.StatusError,
			wantReason: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()

			RenderResult(rec, req, log, tt.res, tt.detailed)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body response.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantReason, body.Reason)
		})
	}
}

func TestRenderResult_DetailedExposesFailedStore(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := entitlement.Result{Status: entitlement.StatusPartiallyApplied, FailedStore: entitlement.StoreIdentity}

	rec := httptest.NewRecorder()
	RenderResult(rec, httptest.NewRequest(http.MethodPost, "/", nil), log, res, true)
	assert.Contains(t, rec.Body.String(), `"failed_store":"identity"`)

	rec = httptest.NewRecorder()
	RenderResult(rec, httptest.NewRequest(http.MethodPost, "/", nil), log, res, false)
	assert.NotContains(t, rec.Body.String(), "failed_store")
}
