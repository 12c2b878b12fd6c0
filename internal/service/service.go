// Package service реализует бизнес-логику магазина RUES VERTES: корзину, оформление заказа,
// сверку платежей и отложенные действия после оплаты.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/model"
	"github.com/mmeshcher/ruesvertes/internal/repository"
	"github.com/mmeshcher/ruesvertes/internal/yookassa"
)

var (
	// ErrUnauthorized возвращается, если запрос выполнен без идентификатора пользователя.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyCart возвращается при оформлении пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNegativeTotal возвращается, если итоговая сумма заказа получилась отрицательной.
	ErrNegativeTotal = errors.New("order total is negative")
	// ErrInvalidContact возвращается при некорректных контактных данных получателя.
	ErrInvalidContact = errors.New("invalid contact")
	// ErrPaymentMismatch возвращается, если платёж или возврат в шлюзе не относится к заказу
	// или его сумма не совпадает с суммой заказа.
	ErrPaymentMismatch = errors.New("payment does not match order")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	GetCart(ctx context.Context, userID int64) ([]model.CartItem, error)
	AddCartItem(ctx context.Context, item model.CartItem) (int64, error)
	UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) error

	IsUserSubscribed(ctx context.Context, userID int64) (bool, error)
	SetUserSubscribed(ctx context.Context, userID int64, email string, subscribed bool) error

	CreateOrder(ctx context.Context, o *model.Order) error
	AttachPayment(ctx context.Context, orderID, paymentID string, status model.PaymentStatus) error
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	GetUserOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	FindOrderForPayment(ctx context.Context, paymentID, orderID string) (*model.Order, error)
	GetOrdersAwaitingPayment(ctx context.Context, limit int, olderThan time.Duration) ([]model.Order, error)
	TransitionPayment(ctx context.Context, t repository.Transition) (bool, error)
	SetShipment(ctx context.Context, orderID, shipmentUUID, shipmentNumber string) error

	DueJobs(ctx context.Context, limit int) ([]model.OutboxJob, error)
	CompleteJob(ctx context.Context, id int64) error
	RetryJob(ctx context.Context, id int64, attempts int, lastError string, nextAttemptAt time.Time) error
	BuryJob(ctx context.Context, id int64, attempts int, lastError string) error
}

// Carrier описывает операции службы доставки.
type Carrier interface {
	Configured() bool
	Regions(ctx context.Context, q cdek.RegionsQuery) ([]cdek.Region, error)
	SuggestCities(ctx context.Context, name string, size int) ([]cdek.City, error)
	Cities(ctx context.Context, q cdek.CitiesQuery) ([]cdek.City, error)
	DeliveryPoints(ctx context.Context, q cdek.DeliveryPointsQuery) ([]cdek.DeliveryPoint, error)
	CalculateTariffs(ctx context.Context, req cdek.TariffRequest) ([]cdek.Tariff, error)
	TariffsForCity(ctx context.Context, fromCity, toCity string, toCityCode, weightGrams int) ([]cdek.Tariff, error)
	CreateShopOrder(ctx context.Context, o cdek.ShopOrder) (*cdek.OrderResponse, error)
	FindOrderByNumber(ctx context.Context, number string) (*cdek.OrderResponse, error)
}

// Payments описывает операции платёжного шлюза.
type Payments interface {
	CreatePayment(ctx context.Context, p yookassa.CreatePaymentParams) (*yookassa.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*yookassa.Payment, error)
	GetRefund(ctx context.Context, refundID string) (*yookassa.Refund, error)
}

// Notifier отправляет уведомления об оплаченных заказах.
type Notifier interface {
	OrderPaid(ctx context.Context, order *model.Order) error
}

// Sender содержит данные магазина как отправителя посылок.
type Sender struct {
	City    string
	Address string
	Name    string
	Phone   string
}

// Options задаёт параметры фоновых процессов.
type Options struct {
	Sender Sender

	OutboxInterval    time.Duration
	OutboxBatch       int
	OutboxMaxAttempts int
	OutboxBaseDelay   time.Duration
	OutboxMaxDelay    time.Duration

	PaymentSyncInterval time.Duration
	PaymentSyncBatch    int
	// Заказ сверяется со шлюзом, если не менялся дольше PaymentSyncAge.
	PaymentSyncAge time.Duration
}

func (o *Options) setDefaults() {
	if o.Sender.City == "" {
		o.Sender.City = "Москва"
	}
	if o.OutboxInterval <= 0 {
		o.OutboxInterval = 2 * time.Second
	}
	if o.OutboxBatch <= 0 {
		o.OutboxBatch = 50
	}
	if o.OutboxMaxAttempts <= 0 {
		o.OutboxMaxAttempts = 8
	}
	if o.OutboxBaseDelay <= 0 {
		o.OutboxBaseDelay = 5 * time.Second
	}
	if o.OutboxMaxDelay <= 0 {
		o.OutboxMaxDelay = 30 * time.Minute
	}
	if o.PaymentSyncInterval <= 0 {
		o.PaymentSyncInterval = time.Minute
	}
	if o.PaymentSyncBatch <= 0 {
		o.PaymentSyncBatch = 100
	}
	if o.PaymentSyncAge <= 0 {
		o.PaymentSyncAge = 2 * time.Minute
	}
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo     Repository
	carrier  Carrier
	payments Payments
	notifier Notifier
	opts     Options
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewService создаёт сервис. carrier и notifier могут быть nil: тогда доставка
// считается бесплатной, а уведомления не отправляются.
func NewService(repo Repository, carrier Carrier, payments Payments, notifier Notifier, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()

	return &Service{
		repo:     repo,
		carrier:  carrier,
		payments: payments,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) carrierConfigured() bool {
	return s.carrier != nil && s.carrier.Configured()
}
