package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/model"
)

func paidOrder(repo *stubRepo) *model.Order {
	o := &model.Order{
		ID:                 "22222222-2222-2222-2222-222222222222",
		UserID:             9,
		Total:              230000,
		Status:             model.OrderStatusPaid,
		PaymentID:          "pay-9",
		PaymentStatus:      model.PaymentStatusSucceeded,
		DeliveryType:       model.DeliveryTypeOffice,
		DeliveryTariffCode: 136,
		DeliveryPointCode:  "NSK12",
		DeliveryCity:       "Новосибирск",
		DeliveryCityCode:   270,
		RecipientName:      "Мария",
		Phone:              "+79131234567",
		Email:              "maria@example.com",
		Items: []model.OrderItem{
			{ProductID: "a", ProductCode: "RV-A", ProductName: "Футболка A", Quantity: 2, Price: 100000, WeightGrams: 250},
		},
	}
	repo.orders[o.ID] = o
	repo.jobs = []model.OutboxJob{
		{ID: 1, OrderID: o.ID, Kind: model.JobKindShipment, State: model.JobStatePending},
		{ID: 2, OrderID: o.ID, Kind: model.JobKindNotification, State: model.JobStatePending},
	}
	return o
}

func TestProcessOutbox_CreatesShipmentAndNotifies(t *testing.T) {
	repo := newStubRepo()
	order := paidOrder(repo)
	carrier := &stubCarrier{
		configured: true,
		createResp: &cdek.OrderResponse{Entity: &cdek.OrderEntity{UUID: "cdek-uuid", CDEKNumber: "1100"}},
	}
	notifier := &stubNotifier{}
	svc := newTestService(repo, carrier, &stubPayments{}, notifier)

	svc.processOutbox(context.Background())

	assert.Equal(t, 1, carrier.createCalls)
	assert.Equal(t, "NSK12", carrier.lastOrder.DeliveryPointCode)
	assert.Equal(t, 136, carrier.lastOrder.TariffCode)
	assert.Equal(t, "Москва", carrier.lastOrder.SenderCity)
	require.Len(t, carrier.lastOrder.Items, 1)
	assert.Equal(t, "RV-A", carrier.lastOrder.Items[0].WareKey)
	assert.Equal(t, 1000.0, carrier.lastOrder.Items[0].Cost)

	assert.Equal(t, "cdek-uuid", repo.orders[order.ID].ShipmentUUID)
	assert.Equal(t, "1100", repo.orders[order.ID].ShipmentNumber)
	assert.Equal(t, []string{order.ID}, notifier.calls)
	assert.ElementsMatch(t, []int64{1, 2}, repo.completedJobs)

	svc.processOutbox(context.Background())
	assert.Equal(t, 1, carrier.createCalls)
}

func TestProcessOutbox_ExistingShipmentNotRecreated(t *testing.T) {
	repo := newStubRepo()
	order := paidOrder(repo)
	order.ShipmentUUID = "already"
	carrier := &stubCarrier{configured: true}
	svc := newTestService(repo, carrier, &stubPayments{}, &stubNotifier{})

	svc.processOutbox(context.Background())

	assert.Zero(t, carrier.createCalls)
	assert.Zero(t, repo.shipmentCalls)
	assert.Contains(t, repo.completedJobs, int64(1))
}

func TestProcessOutbox_RecoversShipmentKnownToCarrier(t *testing.T) {
	repo := newStubRepo()
	order := paidOrder(repo)
	carrier := &stubCarrier{
		configured: true,
		findResp:   &cdek.OrderResponse{Entity: &cdek.OrderEntity{UUID: "found-uuid", CDEKNumber: "77"}},
	}
	svc := newTestService(repo, carrier, &stubPayments{}, &stubNotifier{})

	svc.processOutbox(context.Background())

	assert.Zero(t, carrier.createCalls)
	assert.Equal(t, "found-uuid", repo.orders[order.ID].ShipmentUUID)
}

func TestProcessOutbox_CarrierNotConfiguredSkips(t *testing.T) {
	repo := newStubRepo()
	paidOrder(repo)
	svc := newTestService(repo, &stubCarrier{}, &stubPayments{}, nil)

	svc.processOutbox(context.Background())

	assert.ElementsMatch(t, []int64{1, 2}, repo.completedJobs)
	assert.Empty(t, repo.buriedJobs)
}

func TestProcessOutbox_TransientErrorRetriedWithBackoff(t *testing.T) {
	repo := newStubRepo()
	paidOrder(repo)
	carrier := &stubCarrier{configured: true, createErr: &cdek.Error{Kind: cdek.KindTransient, Status: 502}}
	svc := newTestService(repo, carrier, &stubPayments{}, &stubNotifier{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.processOutbox(context.Background())

	require.Contains(t, repo.retriedJobs, int64(1))
	assert.Equal(t, now.Add(svc.opts.OutboxBaseDelay), repo.retriedJobs[1])
	assert.Equal(t, 1, repo.jobs[0].Attempts)
	assert.Empty(t, repo.buriedJobs)
}

func TestProcessOutbox_BuriedAfterMaxAttempts(t *testing.T) {
	repo := newStubRepo()
	paidOrder(repo)
	repo.jobs = repo.jobs[1:]
	repo.jobs[0].Attempts = 7
	notifier := &stubNotifier{err: errors.New("smtp: connection refused")}
	svc := newTestService(repo, nil, &stubPayments{}, notifier)

	svc.processOutbox(context.Background())

	assert.Equal(t, []int64{2}, repo.buriedJobs)
	assert.Equal(t, model.JobStateDead, repo.jobs[0].State)
}

func TestProcessOutbox_RejectedOrderBuriedImmediately(t *testing.T) {
	repo := newStubRepo()
	paidOrder(repo)
	carrier := &stubCarrier{configured: true, createErr: &cdek.Error{Kind: cdek.KindRequest, Status: 400}}
	svc := newTestService(repo, carrier, &stubPayments{}, &stubNotifier{})

	svc.processOutbox(context.Background())

	assert.Contains(t, repo.buriedJobs, int64(1))
}

func TestBackoff(t *testing.T) {
	svc := &Service{opts: Options{OutboxBaseDelay: time.Second, OutboxMaxDelay: 10 * time.Second}}

	assert.Equal(t, time.Second, svc.backoff(1))
	assert.Equal(t, 2*time.Second, svc.backoff(2))
	assert.Equal(t, 8*time.Second, svc.backoff(4))
	assert.Equal(t, 10*time.Second, svc.backoff(5))
	assert.Equal(t, 10*time.Second, svc.backoff(30))
}

func TestRunOutbox_StopsOnCancel(t *testing.T) {
	svc := newTestService(newStubRepo(), nil, &stubPayments{}, nil)
	svc.opts.OutboxInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.RunOutbox(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunOutbox did not return after cancel")
	}
}
