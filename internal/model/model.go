// Package model содержит доменные сущности магазина RUES VERTES.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money хранит денежную сумму в копейках.
type Money int64

// MoneyFromRubles переводит сумму в рублях (как её отдают СДЭК и ЮКасса) в копейки.
func MoneyFromRubles(rubles float64) Money {
	return Money(decimal.NewFromFloat(rubles).Shift(2).Round(0).IntPart())
}

// ParseMoney разбирает десятичную строку вида "1500.00".
func ParseMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return Money(d.Shift(2).Round(0).IntPart()), nil
}

// Rubles возвращает сумму в рублях.
func (m Money) Rubles() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// Decimal возвращает сумму в рублях в виде десятичного числа.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String форматирует сумму с двумя знаками после запятой.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// User описывает покупателя. Аутентификация выполняется внешним сервисом.
type User struct {
	ID              int64
	Email           string
	EmailSubscribed bool
	CreatedAt       time.Time
}

// Product описывает товар каталога. Каталог ведётся отдельно, здесь он только читается.
type Product struct {
	ID          string
	Code        string
	Name        string
	Price       Money
	Image       string
	WeightGrams int
}

// CartItem описывает позицию корзины пользователя.
type CartItem struct {
	ID        int64
	UserID    int64
	ProductID string
	Quantity  int
	Size      string
	Color     string
	Product   Product
	CreatedAt time.Time
}

// OrderStatus описывает статус заказа магазина.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusPaymentFailed   OrderStatus = "payment_failed"
	OrderStatusRefunded        OrderStatus = "refunded"
)

// PaymentStatus повторяет статус платежа на стороне ЮКассы.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusWaitingForCapture PaymentStatus = "waiting_for_capture"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusCanceled          PaymentStatus = "canceled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

// DeliveryType описывает способ доставки.
type DeliveryType string

const (
	DeliveryTypeOffice DeliveryType = "office"
	DeliveryTypeDoor   DeliveryType = "door"
	DeliveryTypePickup DeliveryType = "pickup"
)

// Order описывает заказ. Суммы и параметры доставки фиксируются в момент оформления.
type Order struct {
	ID            string
	UserID        int64
	ProductsTotal Money
	Discount      Money
	Total         Money
	Status        OrderStatus
	PaymentID     string
	PaymentStatus PaymentStatus

	DeliveryType       DeliveryType
	DeliveryCost       Money
	DeliveryTariff     string
	DeliveryTariffCode int
	DeliveryPointCode  string
	DeliveryCity       string
	DeliveryCityCode   int

	RecipientName string
	Address       string
	Phone         string
	Email         string

	ShipmentUUID   string
	ShipmentNumber string

	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem фиксирует позицию корзины на момент оформления заказа.
type OrderItem struct {
	ID          int64
	ProductID   string
	ProductName string
	ProductCode string
	Quantity    int
	Price       Money
	Size        string
	Color       string
	WeightGrams int
}

// JobKind описывает тип отложенного действия после оплаты заказа.
type JobKind string

const (
	JobKindShipment     JobKind = "shipment"
	JobKindNotification JobKind = "notification"
)

// JobState описывает состояние задачи outbox.
type JobState string

const (
	JobStatePending JobState = "pending"
	JobStateDone    JobState = "done"
	JobStateDead    JobState = "dead"
)

// OutboxJob описывает отложенное действие, записанное в одной транзакции с оплатой заказа.
type OutboxJob struct {
	ID            int64
	OrderID       string
	Kind          JobKind
	State         JobState
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}
