package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ruesvertes/internal/model"
	"github.com/mmeshcher/ruesvertes/internal/repository"
	"github.com/mmeshcher/ruesvertes/internal/yookassa"
)

func pendingOrder(repo *stubRepo) *model.Order {
	o := &model.Order{
		ID:            "11111111-1111-1111-1111-111111111111",
		UserID:        5,
		Total:         150000,
		Status:        model.OrderStatusAwaitingPayment,
		PaymentID:     "pay-5",
		PaymentStatus: model.PaymentStatusPending,
	}
	repo.orders[o.ID] = o
	repo.cart[5] = []model.CartItem{{UserID: 5, ProductID: "a", Quantity: 1, Product: product("a", 1500)}}
	return o
}

func notification(event, paymentID, orderID string) *yookassa.Notification {
	obj := &yookassa.NotificationObject{ID: paymentID, Status: "succeeded"}
	if orderID != "" {
		obj.Metadata = map[string]string{"order_id": orderID}
	}
	return &yookassa.Notification{Type: "notification", Event: event, Object: obj}
}

func gatewayPayment(id, status, orderID, value string) *yookassa.Payment {
	return &yookassa.Payment{
		ID:       id,
		Status:   status,
		Amount:   yookassa.Amount{Value: value, Currency: "RUB"},
		Metadata: map[string]string{"order_id": orderID},
	}
}

func gateway(payments ...*yookassa.Payment) *stubPayments {
	p := &stubPayments{gateway: make(map[string]*yookassa.Payment)}
	for _, payment := range payments {
		p.gateway[payment.ID] = payment
	}
	return p
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.PaymentStatus
		want     bool
	}{
		{model.PaymentStatusPending, model.PaymentStatusWaitingForCapture, true},
		{model.PaymentStatusPending, model.PaymentStatusSucceeded, true},
		{model.PaymentStatusWaitingForCapture, model.PaymentStatusSucceeded, true},
		{model.PaymentStatusPending, model.PaymentStatusCanceled, true},
		{model.PaymentStatusWaitingForCapture, model.PaymentStatusCanceled, true},
		{model.PaymentStatusSucceeded, model.PaymentStatusRefunded, true},

		{model.PaymentStatusSucceeded, model.PaymentStatusSucceeded, false},
		{model.PaymentStatusSucceeded, model.PaymentStatusCanceled, false},
		{model.PaymentStatusCanceled, model.PaymentStatusSucceeded, false},
		{model.PaymentStatusPending, model.PaymentStatusRefunded, false},
		{model.PaymentStatusRefunded, model.PaymentStatusSucceeded, false},
		{model.PaymentStatusWaitingForCapture, model.PaymentStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestEventTarget(t *testing.T) {
	tests := map[string]model.PaymentStatus{
		yookassa.EventPaymentSucceeded:         model.PaymentStatusSucceeded,
		yookassa.EventPaymentWaitingForCapture: model.PaymentStatusWaitingForCapture,
		yookassa.EventPaymentCanceled:          model.PaymentStatusCanceled,
		yookassa.EventRefundSucceeded:          model.PaymentStatusRefunded,
	}
	for event, want := range tests {
		got, ok := EventTarget(event)
		assert.True(t, ok, event)
		assert.Equal(t, want, got, event)
	}

	_, ok := EventTarget("deal.closed")
	assert.False(t, ok)
}

func TestHandleNotification_SucceededIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	svc := newTestService(repo, nil, gateway(gatewayPayment("pay-5", yookassa.StatusSucceeded, order.ID, "1500.00")), nil)

	n := notification(yookassa.EventPaymentSucceeded, "pay-5", order.ID)

	res, err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, model.PaymentStatusPending, res.From)
	assert.Equal(t, model.PaymentStatusSucceeded, res.To)

	res, err = svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res.Outcome)

	assert.Equal(t, 1, repo.transitions)
	assert.Len(t, repo.jobs, 2)
	assert.Empty(t, repo.cart[5])

	stored := repo.orders[order.ID]
	assert.Equal(t, model.OrderStatusPaid, stored.Status)
	assert.Equal(t, model.PaymentStatusSucceeded, stored.PaymentStatus)
}

func TestHandleNotification_ConcurrentDuplicates(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	svc := newTestService(repo, nil, gateway(gatewayPayment("pay-5", yookassa.StatusSucceeded, order.ID, "1500.00")), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleNotification(context.Background(), notification(yookassa.EventPaymentSucceeded, "pay-5", order.ID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.transitions)
	assert.Len(t, repo.jobs, 2)
}

func TestHandleNotification_FindsOrderByMetadata(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	order.PaymentID = ""
	svc := newTestService(repo, nil, gateway(gatewayPayment("pay-new", yookassa.StatusWaitingForCapture, order.ID, "1500.00")), nil)

	res, err := svc.HandleNotification(context.Background(), notification(yookassa.EventPaymentWaitingForCapture, "pay-new", order.ID))
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, "pay-new", repo.orders[order.ID].PaymentID)
	assert.Empty(t, repo.jobs)
	assert.Len(t, repo.cart[5], 1)
}

func TestHandleNotification_CanceledAfterSucceededIgnored(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	order.PaymentStatus = model.PaymentStatusSucceeded
	order.Status = model.OrderStatusPaid
	svc := newTestService(repo, nil, gateway(gatewayPayment("pay-5", yookassa.StatusCanceled, order.ID, "1500.00")), nil)

	res, err := svc.HandleNotification(context.Background(), notification(yookassa.EventPaymentCanceled, "pay-5", ""))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res.Outcome)
	assert.Equal(t, model.OrderStatusPaid, repo.orders[order.ID].Status)
	assert.Zero(t, repo.transitions)
}

func TestHandleNotification_Refund(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	order.PaymentStatus = model.PaymentStatusSucceeded
	order.Status = model.OrderStatusPaid
	payments := &stubPayments{refunds: map[string]*yookassa.Refund{
		"refund-1": {ID: "refund-1", PaymentID: "pay-5", Status: yookassa.StatusSucceeded},
	}}
	svc := newTestService(repo, nil, payments, nil)

	n := &yookassa.Notification{
		Type:  "notification",
		Event: yookassa.EventRefundSucceeded,
		Object: &yookassa.NotificationObject{
			ID:        "refund-1",
			PaymentID: "pay-5",
			Status:    "succeeded",
		},
	}

	res, err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, model.OrderStatusRefunded, repo.orders[order.ID].Status)
	assert.Equal(t, model.PaymentStatusRefunded, repo.orders[order.ID].PaymentStatus)
}

func TestHandleNotification_RefundForOtherPayment(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	order.PaymentStatus = model.PaymentStatusSucceeded
	order.Status = model.OrderStatusPaid
	payments := &stubPayments{refunds: map[string]*yookassa.Refund{
		"refund-9": {ID: "refund-9", PaymentID: "pay-other", Status: yookassa.StatusSucceeded},
	}}
	svc := newTestService(repo, nil, payments, nil)

	n := &yookassa.Notification{
		Type:   "notification",
		Event:  yookassa.EventRefundSucceeded,
		Object: &yookassa.NotificationObject{ID: "refund-9", PaymentID: "pay-5", Status: "succeeded"},
	}

	res, err := svc.HandleNotification(context.Background(), n)
	require.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, Unchanged, res.Outcome)
	assert.Equal(t, model.PaymentStatusSucceeded, repo.orders[order.ID].PaymentStatus)
	assert.Zero(t, repo.transitions)
}

func TestHandleNotification_ForgedEvents(t *testing.T) {
	tests := []struct {
		name      string
		gateway   []*yookassa.Payment
		paymentID string
		wantErr   error
		wantGet   string
	}{
		{
			name:      "foreign payment id, real payment still pending",
			gateway:   []*yookassa.Payment{gatewayPayment("pay-5", yookassa.StatusPending, "11111111-1111-1111-1111-111111111111", "1500.00")},
			paymentID: "forged-payment",
			wantGet:   "pay-5",
		},
		{
			name:      "payment unknown to gateway",
			paymentID: "pay-5",
			wantErr:   ErrPaymentMismatch,
			wantGet:   "pay-5",
		},
		{
			name:      "amount differs from order total",
			gateway:   []*yookassa.Payment{gatewayPayment("pay-5", yookassa.StatusSucceeded, "11111111-1111-1111-1111-111111111111", "1.00")},
			paymentID: "pay-5",
			wantErr:   ErrPaymentMismatch,
			wantGet:   "pay-5",
		},
		{
			name:      "payment created for another order",
			gateway:   []*yookassa.Payment{gatewayPayment("pay-5", yookassa.StatusSucceeded, "22222222-2222-2222-2222-222222222222", "1500.00")},
			paymentID: "pay-5",
			wantErr:   ErrPaymentMismatch,
			wantGet:   "pay-5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			order := pendingOrder(repo)
			payments := gateway(tt.gateway...)
			svc := newTestService(repo, nil, payments, nil)

			res, err := svc.HandleNotification(context.Background(), notification(yookassa.EventPaymentSucceeded, tt.paymentID, order.ID))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, Unchanged, res.Outcome)
			assert.Equal(t, []string{tt.wantGet}, payments.getIDs)
			assert.Zero(t, repo.transitions)
			assert.Empty(t, repo.jobs)
			assert.Len(t, repo.cart[5], 1)

			stored := repo.orders[order.ID]
			assert.Equal(t, model.PaymentStatusPending, stored.PaymentStatus)
			assert.Equal(t, model.OrderStatusAwaitingPayment, stored.Status)
			assert.Equal(t, "pay-5", stored.PaymentID)
		})
	}
}

func TestHandleNotification_GatewayStatusWins(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	svc := newTestService(repo, nil, gateway(gatewayPayment("pay-5", yookassa.StatusCanceled, order.ID, "1500.00")), nil)

	res, err := svc.HandleNotification(context.Background(), notification(yookassa.EventPaymentSucceeded, "pay-5", order.ID))
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, model.PaymentStatusCanceled, res.To)
	assert.Empty(t, repo.jobs)
}

func TestHandleNotification_GatewayUnavailable(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	payments := &stubPayments{getErr: &yookassa.Error{Kind: yookassa.KindTimeout}}
	svc := newTestService(repo, nil, payments, nil)

	_, err := svc.HandleNotification(context.Background(), notification(yookassa.EventPaymentSucceeded, "pay-5", order.ID))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPaymentMismatch)
	assert.Zero(t, repo.transitions)
}

func TestHandleNotification_UnknownOrder(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, &stubPayments{}, nil)

	_, err := svc.HandleNotification(context.Background(), notification(yookassa.EventPaymentSucceeded, "pay-x", "missing"))
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestHandleNotification_UnknownEventIgnored(t *testing.T) {
	repo := newStubRepo()
	pendingOrder(repo)
	svc := newTestService(repo, nil, &stubPayments{}, nil)

	res, err := svc.HandleNotification(context.Background(), notification("payout.succeeded", "pay-5", ""))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res.Outcome)
	assert.Zero(t, repo.transitions)
}

func TestReconcilePayment_RepositoryError(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	repo.transitionErr = errors.New("connection reset")
	svc := newTestService(repo, nil, &stubPayments{}, nil)

	res, err := svc.ReconcilePayment(context.Background(), order, model.PaymentStatusSucceeded, "pay-5")
	require.Error(t, err)
	assert.Equal(t, Unchanged, res.Outcome)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
}

func TestPaymentStatus_SyncsPendingOrder(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	payments := gateway(gatewayPayment("pay-5", yookassa.StatusSucceeded, order.ID, "1500.00"))
	svc := newTestService(repo, nil, payments, nil)

	state, err := svc.PaymentStatus(context.Background(), 5, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, state.PaymentStatus)
	assert.Equal(t, model.OrderStatusPaid, state.Status)
	assert.Equal(t, 1, payments.gets)
	assert.Len(t, repo.jobs, 2)

	state, err = svc.PaymentStatus(context.Background(), 5, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, state.PaymentStatus)
	assert.Equal(t, 1, payments.gets, "settled payment must not be re-fetched")
}

func TestPaymentStatus_GatewayErrorKeepsLocalState(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	payments := &stubPayments{getErr: &yookassa.Error{Kind: yookassa.KindTimeout}}
	svc := newTestService(repo, nil, payments, nil)

	state, err := svc.PaymentStatus(context.Background(), 5, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, state.PaymentStatus)
}

func TestPaymentStatus_ForeignOrder(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	svc := newTestService(repo, nil, &stubPayments{}, nil)

	_, err := svc.PaymentStatus(context.Background(), 6, order.ID)
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)

	_, err = svc.PaymentStatus(context.Background(), 0, order.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSyncPayments_CanceledByGateway(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	payments := gateway(gatewayPayment("pay-5", yookassa.StatusCanceled, order.ID, "1500.00"))
	svc := newTestService(repo, nil, payments, nil)

	svc.syncPayments(context.Background())

	assert.Equal(t, model.OrderStatusPaymentFailed, repo.orders[order.ID].Status)
	assert.Equal(t, model.PaymentStatusCanceled, repo.orders[order.ID].PaymentStatus)
	assert.Len(t, repo.cart[5], 1)
}

func TestSyncPayments_MismatchedPaymentLeftAlone(t *testing.T) {
	repo := newStubRepo()
	order := pendingOrder(repo)
	payments := gateway(gatewayPayment("pay-5", yookassa.StatusSucceeded, order.ID, "15.00"))
	svc := newTestService(repo, nil, payments, nil)

	svc.syncPayments(context.Background())

	assert.Equal(t, model.PaymentStatusPending, repo.orders[order.ID].PaymentStatus)
	assert.Zero(t, repo.transitions)
	assert.Empty(t, repo.jobs)
}
