package yookassa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	return NewClient(Config{
		ShopID:    "shop",
		SecretKey: "secret",
		BaseURL:   ts.URL,
		AppURL:    "https://ruesvertes.ru/",
		Timeout:   time.Second,
	}, nil)
}

func TestCreatePayment(t *testing.T) {
	var got createPaymentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "order-1", r.Header.Get("Idempotence-Key"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "secret", pass)

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"2c5d1b7e-000f-5000-9000-1a2b3c4d5e6f",
			"status":"pending",
			"paid":false,
			"amount":{"value":"2200.00","currency":"RUB"},
			"confirmation":{"type":"redirect","confirmation_url":"https://yoomoney.ru/checkout/payments/v2/contract?orderId=2c5d"},
			"metadata":{"order_id":"order-1"}
		}`))
	})

	p, err := c.CreatePayment(context.Background(), CreatePaymentParams{
		Amount:        decimal.RequireFromString("2200"),
		OrderID:       "order-1",
		Description:   strings.Repeat("з", 200),
		CustomerEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "2c5d1b7e-000f-5000-9000-1a2b3c4d5e6f", p.ID)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "order-1", p.OrderID())
	assert.Contains(t, p.ConfirmationURL(), "yoomoney.ru")

	assert.Equal(t, Amount{Value: "2200.00", Currency: "RUB"}, got.Amount)
	assert.True(t, got.Capture)
	assert.Equal(t, "redirect", got.Confirmation.Type)
	assert.Equal(t, "https://ruesvertes.ru/payment/success?orderId=order-1", got.Confirmation.ReturnURL)
	assert.Equal(t, 128, len([]rune(got.Description)))
	assert.Equal(t, "order-1", got.Metadata["order_id"])

	require.NotNil(t, got.Receipt)
	assert.Equal(t, "buyer@example.com", got.Receipt.Customer.Email)
	require.Len(t, got.Receipt.Items, 1)
	item := got.Receipt.Items[0]
	assert.Equal(t, "1", item.Quantity)
	assert.Equal(t, 1, item.VatCode)
	assert.Equal(t, "full_payment", item.PaymentMode)
	assert.Equal(t, "commodity", item.PaymentSubject)
	assert.Equal(t, 128, len([]rune(item.Description)))
}

func TestCreatePayment_NoReceiptWithoutContacts(t *testing.T) {
	var raw map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"id":"p1","status":"pending"}`))
	})

	_, err := c.CreatePayment(context.Background(), CreatePaymentParams{
		Amount:      decimal.RequireFromString("750.5"),
		OrderID:     "order-2",
		Description: "Заказ",
		ReturnURL:   "https://example.com/back",
	})
	require.NoError(t, err)

	_, hasReceipt := raw["receipt"]
	assert.False(t, hasReceipt)
	assert.Equal(t, "750.50", raw["amount"].(map[string]any)["value"])
	assert.Equal(t, "https://example.com/back", raw["confirmation"].(map[string]any)["return_url"])
}

func TestClient_NotConfigured(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	c := NewClient(Config{ShopID: "shop", BaseURL: ts.URL}, nil)

	_, err := c.CreatePayment(context.Background(), CreatePaymentParams{OrderID: "o"})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, KindNotConfigured, KindOf(err))

	_, err = c.GetPayment(context.Background(), "p")
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  Kind
		retryable bool
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"type":"error","code":"invalid_credentials","description":"Authentication by given credentials failed"}`,
			wantKind: KindAuth,
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"type":"error","code":"invalid_request","description":"Value is invalid","parameter":"amount.value"}`,
			wantKind: KindRequest,
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"type":"error","code":"not_found","description":"Payment not found"}`,
			wantKind: KindRequest,
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      `{"type":"error","code":"internal_server_error"}`,
			wantKind:  KindNetwork,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c.http.RetryWaitMin = time.Millisecond
			c.http.RetryWaitMax = time.Millisecond

			_, err := c.GetPayment(context.Background(), "p1")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	c.http.HTTPClient.Timeout = 20 * time.Millisecond
	c.http.RetryMax = 0

	_, err := c.GetPayment(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/p-42", r.URL.Path)
		assert.Empty(t, r.Header.Get("Idempotence-Key"))
		_, _ = w.Write([]byte(`{"id":"p-42","status":"succeeded","paid":true,"metadata":{"order_id":"o-42"}}`))
	})

	p, err := c.GetPayment(context.Background(), "p-42")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, p.Status)
	assert.True(t, p.Paid)
	assert.Equal(t, "o-42", p.OrderID())
}

func TestGetRefund(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/refunds/r-7", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"r-7","payment_id":"p-42","status":"succeeded","amount":{"value":"1500.00","currency":"RUB"}}`))
	})

	r, err := c.GetRefund(context.Background(), "r-7")
	require.NoError(t, err)
	assert.Equal(t, "p-42", r.PaymentID)
	assert.Equal(t, StatusSucceeded, r.Status)
	assert.Equal(t, "1500.00", r.Amount.Value)

	_, err = c.GetRefund(context.Background(), "")
	assert.Equal(t, KindRequest, KindOf(err))
}

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		event     string
		paymentID string
		orderID   string
	}{
		{
			name:      "payment succeeded",
			body:      `{"type":"notification","event":"payment.succeeded","object":{"id":"p1","status":"succeeded","metadata":{"order_id":"o1"}}}`,
			event:     EventPaymentSucceeded,
			paymentID: "p1",
			orderID:   "o1",
		},
		{
			name:      "refund uses payment id",
			body:      `{"type":"notification","event":"refund.succeeded","object":{"id":"r1","payment_id":"p1","status":"succeeded"}}`,
			event:     EventRefundSucceeded,
			paymentID: "p1",
		},
		{name: "missing event", body: `{"type":"notification","object":{"id":"p1"}}`, wantErr: true},
		{name: "missing object", body: `{"type":"notification","event":"payment.succeeded"}`, wantErr: true},
		{name: "not json", body: `event=payment.succeeded`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedNotification)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, n.Event)
			assert.Equal(t, tt.paymentID, n.PaymentID())
			assert.Equal(t, tt.orderID, n.OrderID())
		})
	}
}
