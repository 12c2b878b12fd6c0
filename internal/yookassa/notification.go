package yookassa

import (
	"encoding/json"
	"fmt"
)

// NotificationObject описывает объект платежа или возврата из уведомления.
type NotificationObject struct {
	ID string `json:"id"`
	// PaymentID заполнен у возвратов.
	PaymentID string            `json:"payment_id,omitempty"`
	Status    string            `json:"status"`
	Amount    *Amount           `json:"amount,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Notification описывает входящее HTTP-уведомление ЮKassa.
type Notification struct {
	Type   string              `json:"type"`
	Event  string              `json:"event"`
	Object *NotificationObject `json:"object"`
}

// PaymentID возвращает идентификатор платежа, к которому относится событие.
func (n *Notification) PaymentID() string {
	if n.Object == nil {
		return ""
	}
	if n.Object.PaymentID != "" {
		return n.Object.PaymentID
	}
	return n.Object.ID
}

// OrderID возвращает идентификатор заказа из metadata.
func (n *Notification) OrderID() string {
	if n.Object == nil {
		return ""
	}
	return n.Object.Metadata["order_id"]
}

// ParseNotification разбирает тело уведомления.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if n.Event == "" || n.Object == nil {
		return nil, ErrMalformedNotification
	}
	return &n, nil
}
