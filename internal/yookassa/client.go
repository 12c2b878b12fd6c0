// Package yookassa реализует клиент платёжного шлюза ЮKassa (API v3).
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/httpclient"
)

const (
	DefaultBaseURL = "https://api.yookassa.ru/v3"

	currencyRUB       = "RUB"
	maxDescription    = 128
	defaultTimeout    = 15 * time.Second
	retryMax          = 2
	retryWaitMin      = 200 * time.Millisecond
	retryWaitMax      = 2 * time.Second
	vatCodeNone       = 1
	paymentModeFull   = "full_payment"
	paymentSubjectGds = "commodity"
)

// Config содержит параметры подключения к ЮKassa.
type Config struct {
	ShopID    string
	SecretKey string
	BaseURL   string
	// AppURL используется для адреса возврата после оплаты.
	AppURL  string
	Timeout time.Duration
}

// CreatePaymentParams задаёт параметры нового платежа.
type CreatePaymentParams struct {
	Amount        decimal.Decimal
	OrderID       string
	Description   string
	CustomerEmail string
	CustomerPhone string
	// ReturnURL по умолчанию <AppURL>/payment/success?orderId=<OrderID>.
	ReturnURL string
}

// Client выполняет запросы к API ЮKassa.
type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	logger *zap.Logger
}

// NewClient создаёт клиент ЮKassa.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	hc := httpclient.New(httpclient.Options{
		Timeout:  cfg.Timeout,
		RetryMax: retryMax,
		WaitMin:  retryWaitMin,
		WaitMax:  retryWaitMax,
		Logger:   logger,
	})

	return &Client{cfg: cfg, http: hc, logger: logger}
}

// Configured сообщает, заданы ли учётные данные магазина.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.ShopID != "" && c.cfg.SecretKey != ""
}

// CreatePayment создаёт платёж с автоматическим подтверждением и редиректом на страницу оплаты.
// Ключ идемпотентности равен идентификатору заказа, поэтому повтор запроса не создаёт второй платёж.
func (c *Client) CreatePayment(ctx context.Context, p CreatePaymentParams) (*Payment, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	amount := Amount{Value: p.Amount.StringFixed(2), Currency: currencyRUB}

	returnURL := p.ReturnURL
	if returnURL == "" {
		returnURL = c.cfg.AppURL + "/payment/success?orderId=" + url.QueryEscape(p.OrderID)
	}

	description := truncateRunes(p.Description, maxDescription)

	req := createPaymentRequest{
		Amount:       amount,
		Confirmation: Confirmation{Type: "redirect", ReturnURL: returnURL},
		Capture:      true,
		Description:  description,
		Metadata:     map[string]string{"order_id": p.OrderID},
	}

	if p.CustomerEmail != "" || p.CustomerPhone != "" {
		req.Receipt = &Receipt{
			Customer: Customer{Email: p.CustomerEmail, Phone: p.CustomerPhone},
			Items: []ReceiptItem{{
				Description:    description,
				Quantity:       "1",
				Amount:         amount,
				VatCode:        vatCodeNone,
				PaymentMode:    paymentModeFull,
				PaymentSubject: paymentSubjectGds,
			}},
		}
	}

	var payment Payment
	if err := c.do(ctx, http.MethodPost, "/payments", p.OrderID, req, &payment); err != nil {
		return nil, err
	}

	c.logger.Info("payment created",
		zap.String("orderID", p.OrderID),
		zap.String("paymentID", payment.ID),
		zap.String("status", payment.Status),
	)
	return &payment, nil
}

// GetPayment возвращает текущее состояние платежа.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if paymentID == "" {
		return nil, &Error{Kind: KindRequest, Description: "payment id is required"}
	}

	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), "", nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetRefund запрашивает текущее состояние возврата.
func (c *Client) GetRefund(ctx context.Context, refundID string) (*Refund, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if refundID == "" {
		return nil, &Error{Kind: KindRequest, Description: "refund id is required"}
	}

	var refund Refund
	if err := c.do(ctx, http.MethodGet, "/refunds/"+url.PathEscape(refundID), "", nil, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotenceKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ShopID, c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindUnexpected, Status: resp.StatusCode, Description: "decode response", Err: err}
	}
	return nil
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func responseError(status int, body []byte) error {
	e := &Error{Status: status}

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil {
		e.Code = apiErr.Code
		e.Description = apiErr.Description
		if apiErr.Parameter != "" {
			e.Description += " (" + apiErr.Parameter + ")"
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		e.Kind = KindNetwork
	default:
		e.Kind = KindRequest
	}
	return e
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
