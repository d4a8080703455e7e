package webhook

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/paymentprovider"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

const (
	testSecret = "whsec_test_secret"
	userID     = "7f1d3c2a-5b6e-4f70-8a91-0b2c3d4e5f60"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Reconcile(ctx context.Context, ev entitlement.Event) entitlement.Result {
	args := m.Called(ctx, ev)
	return args.Get(0).(entitlement.Result)
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveWebhook(_, outcome string) {
	o.outcomes = append(o.outcomes, outcome)
}

func signedRequest(t *testing.T, payload, secret string) *http.Request {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newHandler(svc Service, obs Observer) *Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, paymentprovider.NewClient("sk_test_123", testSecret), svc, obs)
}

const checkoutPaid = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "mode": "payment",
    "payment_status": "paid",
    "metadata": {"user_id": "` + userID + `", "membership_type": "Lifetime"}
  }}
}`

func TestHandler_InvalidSignatureNeverReachesReconciler(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{
			name: "чужой секрет",
			req:  func(t *testing.T) *http.Request { return signedRequest(t, checkoutPaid, "whsec_other") },
		},
		{
			name: "нет заголовка подписи",
			req: func(_ *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", bytes.NewReader([]byte(checkoutPaid)))
			},
		},
		{
			name: "тело изменено после подписи",
			req: func(t *testing.T) *http.Request {
				req := signedRequest(t, checkoutPaid, testSecret)
				tampered := bytes.Replace([]byte(checkoutPaid), []byte("Lifetime"), []byte("lifetime"), 1)
				req.Body = io.NopCloser(bytes.NewReader(tampered))
				return req
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			obs := &recordingObserver{}
			rec := httptest.NewRecorder()

			newHandler(svc, obs).ServeHTTP(rec, tt.req(t))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid signature")
			svc.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
			assert.Equal(t, []string{OutcomeRejected}, obs.outcomes)
		})
	}
}

func TestHandler_TranslatesEvents(t *testing.T) {
	periodEnd := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		payload   string
		wantEvent entitlement.Event
		result    entitlement.Result
		wantCode  int
	}{
		{
			name:      "оплаченный checkout",
			payload:   checkoutPaid,
			wantEvent: entitlement.CheckoutCompleted{UserID: userID, Tier: models.TierLifetime, Proof: "cs_test_1"},
			result:    entitlement.Result{UserID: userID, Status: entitlement.StatusApplied, Tier: models.TierLifetime},
			wantCode:  http.StatusOK,
		},
		{
			name: "продление подписки",
			payload: `{"id":"evt_2","object":"event","type":"customer.subscription.updated","data":{"object":{
				"id":"sub_1","status":"active","metadata":{"userId":"` + userID + `"},
				"items":{"data":[{"current_period_end":1740787200}]}}}}`,
			wantEvent: entitlement.SubscriptionRenewed{UserID: userID, PeriodEnd: &periodEnd},
			result:    entitlement.Result{UserID: userID, Status: entitlement.StatusPartiallyApplied, FailedStore: entitlement.StoreRelational},
			wantCode:  http.StatusOK,
		},
		{
			name: "отмена в конце периода",
			payload: `{"id":"evt_3","object":"event","type":"customer.subscription.updated","data":{"object":{
				"id":"sub_1","status":"active","cancel_at_period_end":true,"metadata":{"user_id":"` + userID + `"},
				"current_period_end":1740787200}}}`,
			wantEvent: entitlement.SubscriptionCanceled{UserID: userID, PeriodEnd: &periodEnd},
			result:    entitlement.Result{UserID: userID, Status: entitlement.StatusApplied},
			wantCode:  http.StatusOK,
		},
		{
			name: "удаление подписки lifetime-пользователя",
			payload: `{"id":"evt_4","object":"event","type":"customer.subscription.deleted","data":{"object":{
				"id":"sub_1","status":"canceled","metadata":{"user_id":"` + userID + `"}}}}`,
			wantEvent: entitlement.SubscriptionCanceled{UserID: userID},
			result:    entitlement.Result{UserID: userID, Status: entitlement.StatusDowngradeRefused, Tier: models.TierLifetime},
			wantCode:  http.StatusBadRequest,
		},
		{
			name:      "оба хранилища недоступны",
			payload:   checkoutPaid,
			wantEvent: entitlement.CheckoutCompleted{UserID: userID, Tier: models.TierLifetime, Proof: "cs_test_1"},
			result:    entitlement.Result{UserID: userID, Status: entitlement.StatusFailed},
			wantCode:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Reconcile", mock.Anything, tt.wantEvent).Return(tt.result).Once()
			rec := httptest.NewRecorder()

			newHandler(svc, nil).ServeHTTP(rec, signedRequest(t, tt.payload, testSecret))

			assert.Equal(t, tt.wantCode, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_IgnoresIrrelevantEvents(t *testing.T) {
	payloads := map[string]string{
		"неоплаченная сессия": `{"id":"evt_5","object":"event","type":"checkout.session.completed","data":{"object":{
			"id":"cs_2","payment_status":"unpaid","metadata":{"user_id":"` + userID + `"}}}}`,
		"просроченная подписка": `{"id":"evt_6","object":"event","type":"customer.subscription.updated","data":{"object":{
			"id":"sub_2","status":"past_due","metadata":{"user_id":"` + userID + `"}}}}`,
		"посторонний тип": `{"id":"evt_7","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			svc := new(MockService)
			obs := &recordingObserver{}
			rec := httptest.NewRecorder()

			newHandler(svc, obs).ServeHTTP(rec, signedRequest(t, payload, testSecret))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), `"ignored":true`)
			svc.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
			assert.Equal(t, []string{OutcomeIgnored}, obs.outcomes)
		})
	}
}

type stubPeriods struct {
	end   *time.Time
	err   error
	calls []string
}

func (s *stubPeriods) SubscriptionPeriodEnd(_ context.Context, id string) (*time.Time, error) {
	s.calls = append(s.calls, id)
	return s.end, s.err
}

func TestHandler_LooksUpMissingPeriodEnd(t *testing.T) {
	periodEnd := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	payload := `{"id":"evt_8","object":"event","type":"customer.subscription.deleted","data":{"object":{
		"id":"sub_9","status":"canceled","metadata":{"user_id":"` + userID + `"}}}}`

	tests := []struct {
		name      string
		periods   *stubPeriods
		wantEvent entitlement.Event
	}{
		{
			name:      "провайдер вернул дату",
			periods:   &stubPeriods{end: &periodEnd},
			wantEvent: entitlement.SubscriptionCanceled{UserID: userID, PeriodEnd: &periodEnd},
		},
		{
			name:      "ошибка провайдера",
			periods:   &stubPeriods{err: paymentprovider.ErrNotFound},
			wantEvent: entitlement.SubscriptionCanceled{UserID: userID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Reconcile", mock.Anything, tt.wantEvent).
				Return(entitlement.Result{UserID: userID, Status: entitlement.StatusApplied}).Once()
			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			h := New(log, paymentprovider.NewClient("sk_test_123", testSecret), svc, nil, WithPeriodLookup(tt.periods))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, signedRequest(t, payload, testSecret))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{"sub_9"}, tt.periods.calls)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_MalformedSignedPayloadIsBadRequest(t *testing.T) {
	svc := new(MockService)
	payload := `{"id":"evt_9","object":"event","type":"checkout.session.completed","data":{"object":{"metadata":"oops"}}}`
	rec := httptest.NewRecorder()

	newHandler(svc, nil).ServeHTTP(rec, signedRequest(t, payload, testSecret))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}
