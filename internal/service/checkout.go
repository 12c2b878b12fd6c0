package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/model"
	"github.com/mmeshcher/ruesvertes/internal/validation"
	"github.com/mmeshcher/ruesvertes/internal/yookassa"
)

// CheckoutRequest содержит данные оформления заказа. Скидка не принимается от клиента,
// она вычисляется по подписке пользователя.
type CheckoutRequest struct {
	UserID int64

	RecipientName string
	Address       string
	Phone         string
	Email         string

	DeliveryType       model.DeliveryType
	DeliveryTariff     string
	DeliveryTariffCode int
	DeliveryPointCode  string
	DeliveryCity       string
	DeliveryCityCode   int
	DeliveryAddress    string
}

// CheckoutResult сообщает, куда перенаправить покупателя для оплаты.
type CheckoutResult struct {
	OrderID         string
	PaymentID       string
	ConfirmationURL string
	Total           model.Money
	DeliveryCost    model.Money
	Discount        model.Money
}

// Quote содержит расчёт стоимости заказа до его создания.
type Quote struct {
	ProductsTotal      model.Money
	Discount           model.Money
	DeliveryCost       model.Money
	DeliveryTariff     string
	DeliveryTariffCode int
	Total              model.Money
}

// Checkout оформляет заказ по корзине пользователя и создаёт платёж.
// Корзина очищается только после подтверждения оплаты.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.UserID == 0 {
		return nil, ErrUnauthorized
	}

	phone, ok := validation.NormalizePhone(req.Phone)
	if !ok {
		return nil, fmt.Errorf("%w: phone %q", ErrInvalidContact, req.Phone)
	}
	if strings.TrimSpace(req.RecipientName) == "" {
		return nil, fmt.Errorf("%w: recipient name is required", ErrInvalidContact)
	}

	items, err := s.repo.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	subscribed, err := s.repo.IsUserSubscribed(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	quote, err := s.quote(ctx, items, subscribed, req)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		ID:                 s.newID(),
		UserID:             req.UserID,
		ProductsTotal:      quote.ProductsTotal,
		Discount:           quote.Discount,
		DeliveryCost:       quote.DeliveryCost,
		Total:              quote.Total,
		Status:             model.OrderStatusAwaitingPayment,
		PaymentStatus:      model.PaymentStatusPending,
		DeliveryType:       req.DeliveryType,
		DeliveryTariff:     quote.DeliveryTariff,
		DeliveryTariffCode: quote.DeliveryTariffCode,
		DeliveryPointCode:  req.DeliveryPointCode,
		DeliveryCity:       req.DeliveryCity,
		DeliveryCityCode:   req.DeliveryCityCode,
		RecipientName:      strings.TrimSpace(req.RecipientName),
		Address:            deliveryAddress(req),
		Phone:              phone,
		Email:              strings.TrimSpace(req.Email),
		Items:              orderItems(items),
		CreatedAt:          s.now().UTC(),
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	log := s.logger.With(zap.String("orderID", order.ID), zap.Int64("userID", order.UserID))
	log.Info("order created",
		zap.Stringer("total", order.Total),
		zap.Stringer("deliveryCost", order.DeliveryCost),
		zap.Stringer("discount", order.Discount),
	)

	payment, err := s.payments.CreatePayment(ctx, yookassa.CreatePaymentParams{
		Amount:        order.Total.Decimal(),
		OrderID:       order.ID,
		Description:   fmt.Sprintf("Заказ RUES VERTES №%s", order.ID),
		CustomerEmail: order.Email,
		CustomerPhone: order.Phone,
	})
	if err != nil {
		// Заказ остаётся в awaiting_payment без платежа; покупатель может оформить его заново.
		log.Error("create payment failed", zap.Error(err))
		return nil, fmt.Errorf("create payment: %w", err)
	}

	status := model.PaymentStatus(payment.Status)
	if status == "" {
		status = model.PaymentStatusPending
	}
	if err := s.repo.AttachPayment(ctx, order.ID, payment.ID, status); err != nil {
		log.Error("attach payment failed", zap.String("paymentID", payment.ID), zap.Error(err))
		return nil, fmt.Errorf("attach payment: %w", err)
	}

	return &CheckoutResult{
		OrderID:         order.ID,
		PaymentID:       payment.ID,
		ConfirmationURL: payment.ConfirmationURL(),
		Total:           order.Total,
		DeliveryCost:    order.DeliveryCost,
		Discount:        order.Discount,
	}, nil
}

// Quote рассчитывает стоимость корзины пользователя без создания заказа.
func (s *Service) Quote(ctx context.Context, req CheckoutRequest) (*Quote, error) {
	if req.UserID == 0 {
		return nil, ErrUnauthorized
	}

	items, err := s.repo.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	subscribed, err := s.repo.IsUserSubscribed(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	return s.quote(ctx, items, subscribed, req)
}

func (s *Service) quote(ctx context.Context, items []model.CartItem, subscribed bool, req CheckoutRequest) (*Quote, error) {
	q := &Quote{
		ProductsTotal:      ProductsTotal(items),
		DeliveryTariff:     req.DeliveryTariff,
		DeliveryTariffCode: req.DeliveryTariffCode,
	}
	q.Discount = SubscriptionDiscount(q.ProductsTotal, subscribed)

	if !IsMoscow(req.DeliveryCityCode, req.DeliveryCity) {
		tariffs, err := s.deliveryTariffs(ctx, req, cartWeight(items))
		if err != nil {
			return nil, err
		}
		if t, ok := selectTariff(tariffs, req.DeliveryTariffCode); ok {
			q.DeliveryCost = model.MoneyFromRubles(t.DeliverySum)
			q.DeliveryTariffCode = t.TariffCode
			if t.TariffName != "" {
				q.DeliveryTariff = t.TariffName
			}
		}
	}

	q.Total = q.ProductsTotal - q.Discount + q.DeliveryCost
	if q.Total < 0 {
		return nil, ErrNegativeTotal
	}
	return q, nil
}

// deliveryTariffs запрашивает тарифы у службы доставки. Ошибки, кроме отказа
// в авторизации, заменяются пустым списком, чтобы расчёт доставки не блокировал
// оформление заказа.
func (s *Service) deliveryTariffs(ctx context.Context, req CheckoutRequest, weight int) ([]cdek.Tariff, error) {
	if !s.carrierConfigured() {
		s.logger.Warn("carrier not configured, delivery cost set to zero", zap.String("city", req.DeliveryCity))
		return nil, nil
	}

	tariffs, err := s.carrier.TariffsForCity(ctx, s.opts.Sender.City, req.DeliveryCity, req.DeliveryCityCode, weight)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		if cdek.IsKind(err, cdek.KindAuth) {
			return nil, fmt.Errorf("delivery tariffs: %w", err)
		}
		s.logger.Warn("tariff lookup failed, delivery cost set to zero",
			zap.String("city", req.DeliveryCity),
			zap.Int("cityCode", req.DeliveryCityCode),
			zap.Error(err),
		)
		return nil, nil
	}
	return tariffs, nil
}

func deliveryAddress(req CheckoutRequest) string {
	addr := strings.TrimSpace(req.DeliveryAddress)
	if addr == "" {
		addr = strings.TrimSpace(req.Address)
	}

	place := strings.TrimSpace(req.DeliveryCity)
	if addr != "" {
		if place != "" {
			place += ", "
		}
		place += addr
	}

	switch req.DeliveryType {
	case model.DeliveryTypeOffice, model.DeliveryTypePickup:
		if req.DeliveryPointCode != "" {
			return fmt.Sprintf("ПВЗ СДЭК %s: %s", req.DeliveryPointCode, place)
		}
		return "ПВЗ СДЭК: " + place
	case model.DeliveryTypeDoor:
		return "Курьер СДЭК: " + place
	default:
		if place == "" {
			return strings.TrimSpace(req.Address)
		}
		return place
	}
}

func orderItems(items []model.CartItem) []model.OrderItem {
	res := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		res = append(res, model.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.Product.Name,
			ProductCode: it.Product.Code,
			Quantity:    it.Quantity,
			Price:       it.Product.Price,
			Size:        it.Size,
			Color:       it.Color,
			WeightGrams: it.Product.WeightGrams,
		})
	}
	return res
}
