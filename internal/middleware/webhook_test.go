package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIPAllowlist(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       int
	}{
		{name: "yookassa v4", remoteAddr: "185.71.76.5:443", want: http.StatusOK},
		{name: "yookassa single host", remoteAddr: "77.75.156.35:1234", want: http.StatusOK},
		{name: "yookassa upper half", remoteAddr: "77.75.154.200:1234", want: http.StatusOK},
		{name: "yookassa v6", remoteAddr: "[2a02:5180:0:2669::1]:443", want: http.StatusOK},
		{name: "behind proxy", remoteAddr: "10.0.0.2:5000", forwarded: "185.71.77.10, 10.0.0.1", want: http.StatusOK},
		{name: "lower half not allowed", remoteAddr: "77.75.154.10:1234", want: http.StatusForbidden},
		{name: "neighbour host", remoteAddr: "77.75.156.12:1234", want: http.StatusForbidden},
		{name: "foreign", remoteAddr: "8.8.8.8:53", want: http.StatusForbidden},
		{name: "spoofed garbage", remoteAddr: "8.8.8.8:53", forwarded: "yookassa", want: http.StatusForbidden},
	}

	h := IPAllowlist(YooKassaNetworks, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}
