package cdek

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"
)

// Токен считается устаревшим за tokenRefreshMargin до истечения.
const tokenRefreshMargin = 60 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// TokenSource получает и кэширует OAuth-токен СДЭК (client credentials).
// Параллельные запросы при пустом кэше объединяются в один запрос токена.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *retryablehttp.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
	now   func() time.Time
}

// NewTokenSource создаёт источник токенов для указанного адреса API.
func NewTokenSource(baseURL, clientID, clientSecret string, httpClient *retryablehttp.Client) *TokenSource {
	return &TokenSource{
		tokenURL:     strings.TrimRight(baseURL, "/") + "/oauth/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Configured сообщает, заданы ли учётные данные.
func (s *TokenSource) Configured() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// Token возвращает действующий токен, при необходимости запрашивая новый.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}

	if token, ok := s.cached(); ok {
		return token, nil
	}

	ch := s.group.DoChan("token", func() (interface{}, error) {
		if token, ok := s.cached(); ok {
			return token, nil
		}
		// Запрос разделяется между вызывающими, поэтому отмена одного из них не должна его прерывать.
		return s.fetch(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate сбрасывает кэш, например после ответа 401 от API.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, true
	}
	return "", false
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: "token request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: "read token response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			Message          string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil {
			switch {
			case apiErr.ErrorDescription != "":
				msg = apiErr.ErrorDescription
			case apiErr.Message != "":
				msg = apiErr.Message
			case apiErr.Error != "":
				msg = apiErr.Error
			}
		}
		kind := KindAuth
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			kind = KindTransient
		}
		return "", &Error{Kind: kind, Status: resp.StatusCode, Message: msg}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &Error{Kind: KindAuth, Status: resp.StatusCode, Message: "decode token response", Err: err}
	}
	if tr.AccessToken == "" {
		return "", &Error{Kind: KindAuth, Status: resp.StatusCode, Message: "empty access token"}
	}

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expiresAt = s.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenRefreshMargin)
	s.mu.Unlock()

	return tr.AccessToken, nil
}
