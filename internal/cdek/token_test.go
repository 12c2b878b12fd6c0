package cdek

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ruesvertes/internal/httpclient"
)

func newTokenServer(t *testing.T, calls *int32, delay time.Duration, status int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))

		n := atomic.AddInt32(calls, 1)
		time.Sleep(delay)

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-` + string(rune('0'+n)) + `","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestTokenSource(baseURL, id, secret string) *TokenSource {
	return NewTokenSource(baseURL, id, secret, httpclient.New(httpclient.Options{Timeout: time.Second}))
}

func TestTokenSource_NotConfigured(t *testing.T) {
	var calls int32
	ts := newTokenServer(t, &calls, 0, http.StatusOK)

	src := newTestTokenSource(ts.URL, "", "secret")
	_, err := src.Token(context.Background())

	require.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, IsKind(err, KindConfig))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTokenSource_ConcurrentCallsShareOneRequest(t *testing.T) {
	var calls int32
	ts := newTokenServer(t, &calls, 50*time.Millisecond, http.StatusOK)
	src := newTestTokenSource(ts.URL, "id", "secret")

	const n = 20
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = src.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenSource_RefreshesBeforeExpiry(t *testing.T) {
	var calls int32
	ts := newTokenServer(t, &calls, 0, http.StatusOK)
	src := newTestTokenSource(ts.URL, "id", "secret")

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// Токен живёт час, но за минуту до истечения уже считается устаревшим.
	now = now.Add(58 * time.Minute)
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	now = now.Add(90 * time.Second)
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenSource_Invalidate(t *testing.T) {
	var calls int32
	ts := newTokenServer(t, &calls, 0, http.StatusOK)
	src := newTestTokenSource(ts.URL, "id", "secret")

	_, err := src.Token(context.Background())
	require.NoError(t, err)

	src.Invalidate()

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestTokenSource_AuthErrorNotRetried(t *testing.T) {
	var calls int32
	ts := newTokenServer(t, &calls, 0, http.StatusUnauthorized)

	src := NewTokenSource(ts.URL, "id", "secret", httpclient.New(httpclient.Options{
		Timeout:  time.Second,
		RetryMax: 3,
		WaitMin:  time.Millisecond,
		WaitMax:  time.Millisecond,
	}))

	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
	assert.Contains(t, err.Error(), "bad credentials")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
