package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler_ServeHTTP(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := Check{Name: "postgres", Fn: func(context.Context) error { return nil }}
	bad := Check{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name     string
		checks   []Check
		wantCode int
		wantBody string
	}{
		{name: "без проверок", wantCode: http.StatusOK, wantBody: `"status":"ok"`},
		{name: "всё доступно", checks: []Check{ok}, wantCode: http.StatusOK, wantBody: `"postgres":"ok"`},
		{name: "redis недоступен", checks: []Check{ok, bad}, wantCode: http.StatusServiceUnavailable, wantBody: `"redis":"connection refused"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(log, tt.checks...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
