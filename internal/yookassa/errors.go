package yookassa

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку платёжного шлюза.
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindAuth          Kind = "auth_error"
	KindRequest       Kind = "request_error"
	KindNetwork       Kind = "network_error"
	KindTimeout       Kind = "timeout"
	KindUnexpected    Kind = "unexpected"
)

// Error возвращается всеми методами клиента.
type Error struct {
	Kind   Kind
	Status int
	// Code и Description берутся из тела ответа ЮKassa, если оно есть.
	Code        string
	Description string
	Err         error
}

func (e *Error) Error() string {
	msg := "yookassa " + string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable сообщает, можно ли повторить запрос позже.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}

// ErrNotConfigured возвращается, если не заданы YOOKASSA_SHOP_ID и YOOKASSA_SECRET_KEY.
var ErrNotConfigured = &Error{Kind: KindNotConfigured, Description: "credentials not configured"}

// ErrMalformedNotification возвращается, если тело уведомления не содержит event или object.
var ErrMalformedNotification = errors.New("malformed notification")

// KindOf возвращает класс ошибки или пустую строку для посторонних ошибок.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable сообщает, является ли ошибка временной.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
