package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/model"
	"github.com/mmeshcher/ruesvertes/internal/repository"
	"github.com/mmeshcher/ruesvertes/internal/yookassa"
)

// Outcome описывает результат сверки платежа.
type Outcome int

const (
	// Unchanged: переход недопустим или уже выполнен, побочных эффектов нет.
	Unchanged Outcome = iota
	// Transitioned: статус платежа изменён.
	Transitioned
)

func (o Outcome) String() string {
	if o == Transitioned {
		return "transitioned"
	}
	return "unchanged"
}

// Reconciliation описывает результат ReconcilePayment.
type Reconciliation struct {
	Outcome Outcome
	From    model.PaymentStatus
	To      model.PaymentStatus
}

// allowedFrom перечисляет статусы, из которых допустим переход в ключевой статус.
var allowedFrom = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentStatusWaitingForCapture: {model.PaymentStatusPending},
	model.PaymentStatusSucceeded:         {model.PaymentStatusPending, model.PaymentStatusWaitingForCapture},
	model.PaymentStatusCanceled:          {model.PaymentStatusPending, model.PaymentStatusWaitingForCapture},
	model.PaymentStatusRefunded:          {model.PaymentStatusSucceeded},
}

// CanTransition сообщает, допустим ли переход статуса платежа.
func CanTransition(from, to model.PaymentStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// orderStatusFor возвращает новый статус заказа для статуса платежа или пустую строку,
// если статус заказа не меняется.
func orderStatusFor(to model.PaymentStatus) model.OrderStatus {
	switch to {
	case model.PaymentStatusSucceeded:
		return model.OrderStatusPaid
	case model.PaymentStatusCanceled:
		return model.OrderStatusPaymentFailed
	case model.PaymentStatusRefunded:
		return model.OrderStatusRefunded
	default:
		return ""
	}
}

// EventTarget сопоставляет событие уведомления ЮKassa целевому статусу платежа.
func EventTarget(event string) (model.PaymentStatus, bool) {
	switch event {
	case yookassa.EventPaymentSucceeded:
		return model.PaymentStatusSucceeded, true
	case yookassa.EventPaymentWaitingForCapture:
		return model.PaymentStatusWaitingForCapture, true
	case yookassa.EventPaymentCanceled:
		return model.PaymentStatusCanceled, true
	case yookassa.EventRefundSucceeded:
		return model.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// ReconcilePayment переводит платёж заказа в статус target. Переход выполняется условным
// обновлением в БД, поэтому параллельные уведомления и опросы применяют его не больше одного раза.
// При успешной оплате в той же транзакции очищается корзина и ставятся задачи на отправку
// посылки и уведомления.
func (s *Service) ReconcilePayment(ctx context.Context, order *model.Order, target model.PaymentStatus, paymentID string) (Reconciliation, error) {
	res := Reconciliation{Outcome: Unchanged, From: order.PaymentStatus, To: order.PaymentStatus}

	if !CanTransition(order.PaymentStatus, target) {
		return res, nil
	}

	t := repository.Transition{
		OrderID:     order.ID,
		UserID:      order.UserID,
		From:        allowedFrom[target],
		To:          target,
		OrderStatus: orderStatusFor(target),
		PaymentID:   paymentID,
	}
	if target == model.PaymentStatusSucceeded {
		t.ClearCart = true
		t.Jobs = []model.JobKind{model.JobKindShipment, model.JobKindNotification}
	}

	applied, err := s.repo.TransitionPayment(ctx, t)
	if err != nil {
		return res, fmt.Errorf("transition payment: %w", err)
	}
	if !applied {
		return res, nil
	}

	s.logger.Info("payment status changed",
		zap.String("orderID", order.ID),
		zap.String("paymentID", paymentID),
		zap.String("from", string(order.PaymentStatus)),
		zap.String("to", string(target)),
	)

	order.PaymentStatus = target
	if t.OrderStatus != "" {
		order.Status = t.OrderStatus
	}

	return Reconciliation{Outcome: Transitioned, From: res.From, To: target}, nil
}

// HandleNotification обрабатывает уведомление ЮKassa. Неизвестные события игнорируются.
// Если заказ не найден ни по платежу, ни по metadata, возвращается repository.ErrOrderNotFound.
// Тело уведомления не считается достоверным: платёж или возврат запрашивается у шлюза,
// и заказ переводится в статус, который вернул шлюз. Если объект в шлюзе не относится
// к заказу, возвращается ErrPaymentMismatch.
func (s *Service) HandleNotification(ctx context.Context, n *yookassa.Notification) (Reconciliation, error) {
	paymentID := n.PaymentID()
	orderID := n.OrderID()
	log := s.logger.With(
		zap.String("event", n.Event),
		zap.String("paymentID", paymentID),
		zap.String("orderID", orderID),
	)

	eventTarget, known := EventTarget(n.Event)

	order, err := s.repo.FindOrderForPayment(ctx, paymentID, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Warn("webhook order not found")
		} else {
			log.Error("webhook order lookup failed", zap.Error(err))
		}
		return Reconciliation{}, err
	}

	unchanged := Reconciliation{Outcome: Unchanged, From: order.PaymentStatus, To: order.PaymentStatus}
	if !known {
		log.Info("webhook event ignored")
		return unchanged, nil
	}

	var target model.PaymentStatus
	if n.Event == yookassa.EventRefundSucceeded {
		target, err = s.verifyRefund(ctx, order, n.Object.ID)
	} else {
		var payment *yookassa.Payment
		payment, err = s.verifyPayment(ctx, order, paymentID)
		if payment != nil {
			target = model.PaymentStatus(payment.Status)
			paymentID = payment.ID
		}
	}
	if err != nil {
		if errors.Is(err, ErrPaymentMismatch) {
			log.Warn("webhook rejected by gateway check", zap.Error(err))
		} else {
			log.Error("webhook gateway check failed", zap.Error(err))
		}
		return unchanged, err
	}

	if target != eventTarget {
		log.Info("gateway status differs from event", zap.String("gatewayStatus", string(target)))
	}

	res, err := s.ReconcilePayment(ctx, order, target, paymentID)
	if err != nil {
		log.Error("webhook reconciliation failed", zap.Error(err))
		return res, err
	}

	if res.Outcome == Unchanged {
		log.Info("webhook did not change order", zap.String("paymentStatus", string(res.From)))
	}
	return res, nil
}

// verifyPayment запрашивает платёж заказа у шлюза и проверяет, что он создан для этого
// заказа на полную сумму. Идентификатор из уведомления используется, только если у заказа
// ещё нет платежа.
func (s *Service) verifyPayment(ctx context.Context, order *model.Order, hintID string) (*yookassa.Payment, error) {
	id := order.PaymentID
	if id == "" {
		id = hintID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: order %s has no payment", ErrPaymentMismatch, order.ID)
	}

	payment, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		if yookassa.KindOf(err) == yookassa.KindRequest {
			return nil, fmt.Errorf("%w: %w", ErrPaymentMismatch, err)
		}
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}

	if payment.ID != id || payment.OrderID() != order.ID {
		return nil, fmt.Errorf("%w: payment %s belongs to order %q", ErrPaymentMismatch, payment.ID, payment.OrderID())
	}
	if err := checkAmount(payment.Amount, order.Total); err != nil {
		return nil, err
	}
	return payment, nil
}

// verifyRefund запрашивает возврат у шлюза и возвращает целевой статус платежа.
// Пока возврат не завершён, статус заказа не меняется.
func (s *Service) verifyRefund(ctx context.Context, order *model.Order, refundID string) (model.PaymentStatus, error) {
	if order.PaymentID == "" || refundID == "" {
		return "", fmt.Errorf("%w: refund %q for order %s", ErrPaymentMismatch, refundID, order.ID)
	}

	refund, err := s.payments.GetRefund(ctx, refundID)
	if err != nil {
		if yookassa.KindOf(err) == yookassa.KindRequest {
			return "", fmt.Errorf("%w: %w", ErrPaymentMismatch, err)
		}
		return "", fmt.Errorf("get refund %s: %w", refundID, err)
	}

	if refund.ID != refundID || refund.PaymentID != order.PaymentID {
		return "", fmt.Errorf("%w: refund %s belongs to payment %q", ErrPaymentMismatch, refund.ID, refund.PaymentID)
	}
	if refund.Status != yookassa.StatusSucceeded {
		return order.PaymentStatus, nil
	}
	return model.PaymentStatusRefunded, nil
}

func checkAmount(amount yookassa.Amount, total model.Money) error {
	if amount.Currency != "" && amount.Currency != "RUB" {
		return fmt.Errorf("%w: currency %s", ErrPaymentMismatch, amount.Currency)
	}
	value, err := model.ParseMoney(amount.Value)
	if err != nil {
		return fmt.Errorf("%w: amount %q: %w", ErrPaymentMismatch, amount.Value, err)
	}
	if value != total {
		return fmt.Errorf("%w: amount %s, order total %s", ErrPaymentMismatch, value, total)
	}
	return nil
}

// PaymentState описывает состояние оплаты заказа для страницы возврата.
type PaymentState struct {
	OrderID       string
	Status        model.OrderStatus
	PaymentStatus model.PaymentStatus
	Total         model.Money
}

// PaymentStatus возвращает состояние оплаты заказа. Если локально платёж ещё в pending,
// статус запрашивается у шлюза и сверяется так же, как при уведомлении. Ошибки шлюза
// только логируются.
func (s *Service) PaymentStatus(ctx context.Context, userID int64, orderID string) (*PaymentState, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	order, err := s.repo.GetUserOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == model.PaymentStatusPending && order.PaymentID != "" {
		s.syncOrder(ctx, order)
	}

	return &PaymentState{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total,
	}, nil
}

// syncOrder запрашивает платёж у шлюза и применяет его статус к заказу.
func (s *Service) syncOrder(ctx context.Context, order *model.Order) {
	log := s.logger.With(zap.String("orderID", order.ID), zap.String("paymentID", order.PaymentID))

	payment, err := s.verifyPayment(ctx, order, "")
	if err != nil {
		if errors.Is(err, ErrPaymentMismatch) {
			log.Error("payment does not match order", zap.Error(err))
		} else {
			log.Warn("get payment failed", zap.Error(err))
		}
		return
	}

	target := model.PaymentStatus(payment.Status)
	if target == order.PaymentStatus {
		return
	}

	if _, err := s.ReconcilePayment(ctx, order, target, payment.ID); err != nil {
		log.Error("payment reconciliation failed", zap.Error(err))
	}
}

// RunPaymentSync периодически сверяет со шлюзом заказы, по которым не пришло уведомление.
// Блокируется до отмены ctx.
func (s *Service) RunPaymentSync(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PaymentSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncPayments(ctx)
		}
	}
}

func (s *Service) syncPayments(ctx context.Context) {
	orders, err := s.repo.GetOrdersAwaitingPayment(ctx, s.opts.PaymentSyncBatch, s.opts.PaymentSyncAge)
	if err != nil {
		s.logger.Error("load orders awaiting payment", zap.Error(err))
		return
	}

	for i := range orders {
		if ctx.Err() != nil {
			return
		}
		s.syncOrder(ctx, &orders[i])
	}
}
