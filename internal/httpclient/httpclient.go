// Package httpclient собирает HTTP-клиенты внешних интеграций с таймаутом и ограниченным числом повторов.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Options задаёт параметры клиента.
type Options struct {
	Timeout  time.Duration
	RetryMax int
	WaitMin  time.Duration
	WaitMax  time.Duration
	Logger   *zap.Logger
}

// New возвращает клиент, повторяющий запрос только при сетевых ошибках, 429 и 5xx.
// Ошибки 4xx (в том числе авторизации) не повторяются.
func New(opts Options) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient.Timeout = opts.Timeout
	c.RetryMax = opts.RetryMax
	if opts.WaitMin > 0 {
		c.RetryWaitMin = opts.WaitMin
	}
	if opts.WaitMax > 0 {
		c.RetryWaitMax = opts.WaitMax
	}
	c.CheckRetry = checkRetry
	// Без ErrorHandler клиент после исчерпания попыток теряет ответ и возвращает общую ошибку.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.Logger != nil {
		c.Logger = leveledLogger{s: opts.Logger.Sugar()}
	} else {
		c.Logger = nil
	}

	return c
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
