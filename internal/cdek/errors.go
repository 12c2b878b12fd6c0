package cdek

import (
	"errors"
	"fmt"
	"strings"
)

// Kind классифицирует ошибку обращения к СДЭК.
type Kind string

const (
	KindConfig    Kind = "config"
	KindAuth      Kind = "auth"
	KindRequest   Kind = "request"
	KindNotFound  Kind = "not_found"
	KindTransient Kind = "transient"
)

// APIError описывает ошибку в теле ответа СДЭК.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error возвращается всеми методами клиента.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("cdek ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNotConfigured возвращается, если не заданы CDEK_CLIENT_ID и CDEK_CLIENT_SECRET.
var ErrNotConfigured = &Error{Kind: KindConfig, Message: "credentials not configured"}

// IsKind сообщает, относится ли ошибка к указанному классу.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsRetryable сообщает, имеет ли смысл повторить операцию позже.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindTransient
}

func joinAPIErrors(list []APIError) string {
	parts := make([]string, 0, len(list))
	for _, e := range list {
		if e.Code != "" {
			parts = append(parts, e.Code+": "+e.Message)
		} else {
			parts = append(parts, e.Message)
		}
	}
	return strings.Join(parts, ", ")
}
