package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func echoHandler(contentType string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
	}
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		acceptGzip     bool
		gzipRequest    bool
		contentType    string
		status         int
		wantCompressed bool
	}{
		{name: "json compressed", acceptGzip: true, contentType: "application/json", status: http.StatusOK, wantCompressed: true},
		{name: "html compressed", acceptGzip: true, contentType: "text/html; charset=utf-8", status: http.StatusOK, wantCompressed: true},
		{name: "client without gzip", contentType: "application/json", status: http.StatusOK},
		{name: "binary not compressed", acceptGzip: true, contentType: "image/png", status: http.StatusOK},
		{name: "gzipped webhook body", acceptGzip: true, gzipRequest: true, contentType: "application/json", status: http.StatusOK, wantCompressed: true},
		{name: "gzipped body plain response", gzipRequest: true, contentType: "application/json", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const payload = `{"event":"payment.succeeded"}`

			var body io.Reader = strings.NewReader(payload)
			if tt.gzipRequest {
				body = gzipBytes(t, payload)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", body)
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip, deflate")
			}

			rec := httptest.NewRecorder()
			GzipMiddleware(echoHandler(tt.contentType, tt.status)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))

			var got []byte
			var err error
			if tt.wantCompressed {
				require.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
				gr, gerr := gzip.NewReader(res.Body)
				require.NoError(t, gerr)
				defer gr.Close()
				got, err = io.ReadAll(gr)
			} else {
				assert.Empty(t, res.Header.Get("Content-Encoding"))
				got, err = io.ReadAll(res.Body)
			}
			require.NoError(t, err)
			assert.Equal(t, `{"echo":`+payload+`}`, string(got))
		})
	}
}

func TestGzipMiddleware_NoContent(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/cart", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Zero(t, rec.Body.Len())
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")

	called := false
	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}
