package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrtlevels/hrtlevels/internal/api/middleware"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{name: "generated when absent"},
		{name: "client id kept", incoming: "ios-7f3a.42_b", want: "ios-7f3a.42_b"},
		{name: "log injection replaced", incoming: "abc\nlevel=error"},
		{name: "spaces replaced", incoming: "my request"},
		{name: "too long replaced", incoming: strings.Repeat("a", 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = middleware.GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/me/levels", nil)
			if tt.incoming != "" {
				req.Header.Set(middleware.RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.want != "" {
				assert.Equal(t, tt.want, seen)
			} else {
				assert.True(t, strings.HasPrefix(seen, "req_"), seen)
			}
			assert.Equal(t, seen, rec.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		ids[middleware.NewRequestID()] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestGetRequestID_OutsideRequest(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(t.Context()))
}
