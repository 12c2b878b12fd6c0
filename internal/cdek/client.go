// Package cdek предоставляет клиент API СДЭК v2: справочники, пункты выдачи, расчёт тарифов и заказы.
package cdek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/httpclient"
)

const (
	ProductionURL = "https://api.cdek.ru/v2"
	TestURL       = "https://api.edu.cdek.ru/v2"

	defaultTimeout = 10 * time.Second
	retryMax       = 2
	retryWaitMin   = 200 * time.Millisecond
	retryWaitMax   = 2 * time.Second
)

// Config содержит параметры подключения к СДЭК.
type Config struct {
	ClientID     string
	ClientSecret string
	TestMode     bool
	// BaseURL переопределяет адрес API, например в тестах.
	BaseURL string
	Timeout time.Duration
}

// Client инкапсулирует HTTP-взаимодействие с API СДЭК.
type Client struct {
	baseURL string
	// retrying повторяет запрос при временных ошибках, single не повторяет (создание заказов).
	retrying *retryablehttp.Client
	single   *retryablehttp.Client
	tokens   *TokenSource
	logger   *zap.Logger
}

// NewClient создаёт клиент СДЭК.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := cfg.BaseURL
	if base == "" {
		base = ProductionURL
		if cfg.TestMode {
			base = TestURL
		}
	}
	base = strings.TrimRight(base, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retrying := httpclient.New(httpclient.Options{
		Timeout:  timeout,
		RetryMax: retryMax,
		WaitMin:  retryWaitMin,
		WaitMax:  retryWaitMax,
		Logger:   logger,
	})
	single := httpclient.New(httpclient.Options{Timeout: timeout, Logger: logger})

	return &Client{
		baseURL:  base,
		retrying: retrying,
		single:   single,
		tokens:   NewTokenSource(base, cfg.ClientID, cfg.ClientSecret, retrying),
		logger:   logger,
	}
}

// Configured сообщает, заданы ли учётные данные СДЭК.
func (c *Client) Configured() bool {
	return c != nil && c.tokens.Configured()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any, retry bool) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.single
	if retry {
		hc = c.retrying
	}

	c.logger.Debug("cdek request", zap.String("method", method), zap.String("path", path))

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &Error{Kind: KindTransient, Message: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransient, Message: "read response", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.responseError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func (c *Client) responseError(status int, body []byte) error {
	var payload struct {
		Errors           []APIError    `json:"errors"`
		Requests         []RequestInfo `json:"requests"`
		Message          string        `json:"message"`
		ErrorDescription string        `json:"error_description"`
	}

	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case len(payload.Errors) > 0:
			msg = joinAPIErrors(payload.Errors)
		case len(payload.Requests) > 0 && len(payload.Requests[0].Errors) > 0:
			msg = joinAPIErrors(payload.Requests[0].Errors)
		case payload.Message != "":
			msg = payload.Message
		case payload.ErrorDescription != "":
			msg = payload.ErrorDescription
		}
	}

	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.tokens.Invalidate()
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		kind = KindTransient
	default:
		kind = KindRequest
	}

	return &Error{Kind: kind, Status: status, Message: msg}
}
