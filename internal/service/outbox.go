package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/model"
)

// errSkipJob означает, что задачу выполнить нельзя и повторять её бессмысленно.
var errSkipJob = errors.New("job skipped")

// RunOutbox периодически выполняет отложенные действия по оплаченным заказам:
// регистрацию посылки в СДЭК и отправку уведомления. Блокируется до отмены ctx.
func (s *Service) RunOutbox(ctx context.Context) {
	ticker := time.NewTicker(s.opts.OutboxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processOutbox(ctx)
		}
	}
}

func (s *Service) processOutbox(ctx context.Context) {
	jobs, err := s.repo.DueJobs(ctx, s.opts.OutboxBatch)
	if err != nil {
		s.logger.Error("load outbox jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		s.processJob(ctx, job)
	}
}

func (s *Service) processJob(ctx context.Context, job model.OutboxJob) {
	log := s.logger.With(
		zap.Int64("jobID", job.ID),
		zap.String("orderID", job.OrderID),
		zap.String("kind", string(job.Kind)),
	)

	err := s.runJob(ctx, job)
	switch {
	case err == nil, errors.Is(err, errSkipJob):
		if err != nil {
			log.Info("outbox job skipped", zap.Error(err))
		}
		if err := s.repo.CompleteJob(ctx, job.ID); err != nil {
			log.Error("complete outbox job", zap.Error(err))
		}
		return
	case errors.Is(err, context.Canceled):
		return
	}

	attempts := job.Attempts + 1
	if attempts >= s.opts.OutboxMaxAttempts || !isRetryableJobError(err) {
		log.Error("outbox job failed permanently", zap.Int("attempts", attempts), zap.Error(err))
		if err := s.repo.BuryJob(ctx, job.ID, attempts, err.Error()); err != nil {
			log.Error("bury outbox job", zap.Error(err))
		}
		return
	}

	delay := s.backoff(attempts)
	log.Warn("outbox job failed, will retry",
		zap.Int("attempts", attempts),
		zap.Duration("retryIn", delay),
		zap.Error(err),
	)
	if err := s.repo.RetryJob(ctx, job.ID, attempts, err.Error(), s.now().Add(delay)); err != nil {
		log.Error("reschedule outbox job", zap.Error(err))
	}
}

func (s *Service) runJob(ctx context.Context, job model.OutboxJob) error {
	order, err := s.repo.GetOrder(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	switch job.Kind {
	case model.JobKindShipment:
		return s.createShipment(ctx, order)
	case model.JobKindNotification:
		if s.notifier == nil {
			return fmt.Errorf("%w: notifier not configured", errSkipJob)
		}
		return s.notifier.OrderPaid(ctx, order)
	default:
		return fmt.Errorf("%w: unknown job kind %q", errSkipJob, job.Kind)
	}
}

// createShipment регистрирует посылку в СДЭК. Повторная регистрация исключается:
// если ссылка уже сохранена или СДЭК знает заказ с таким номером, новый заказ не создаётся.
func (s *Service) createShipment(ctx context.Context, order *model.Order) error {
	if order.ShipmentUUID != "" {
		return nil
	}
	if !s.carrierConfigured() {
		return fmt.Errorf("%w: carrier not configured", errSkipJob)
	}
	if order.DeliveryTariffCode == 0 {
		return fmt.Errorf("%w: order has no delivery tariff", errSkipJob)
	}

	existing, err := s.carrier.FindOrderByNumber(ctx, order.ID)
	switch {
	case err == nil && existing.Entity != nil:
		return s.repo.SetShipment(ctx, order.ID, existing.Entity.UUID, existing.Entity.CDEKNumber)
	case err != nil && !cdek.IsKind(err, cdek.KindNotFound):
		return fmt.Errorf("find shipment: %w", err)
	}

	resp, err := s.carrier.CreateShopOrder(ctx, s.shopOrder(order))
	if err != nil {
		return fmt.Errorf("create shipment: %w", err)
	}
	if resp.Entity == nil || resp.Entity.UUID == "" {
		return errors.New("create shipment: empty carrier response")
	}

	s.logger.Info("shipment created",
		zap.String("orderID", order.ID),
		zap.String("shipmentUUID", resp.Entity.UUID),
	)
	return s.repo.SetShipment(ctx, order.ID, resp.Entity.UUID, resp.Entity.CDEKNumber)
}

func (s *Service) shopOrder(order *model.Order) cdek.ShopOrder {
	items := make([]cdek.ShopOrderItem, 0, len(order.Items))
	for _, it := range order.Items {
		wareKey := it.ProductCode
		if wareKey == "" {
			wareKey = it.ProductID
		}
		items = append(items, cdek.ShopOrderItem{
			Name:    it.ProductName,
			WareKey: wareKey,
			Cost:    it.Price.Rubles(),
			Weight:  it.WeightGrams,
			Amount:  it.Quantity,
		})
	}

	o := cdek.ShopOrder{
		OrderID:        order.ID,
		TariffCode:     order.DeliveryTariffCode,
		SenderCity:     s.opts.Sender.City,
		SenderAddress:  s.opts.Sender.Address,
		SenderName:     s.opts.Sender.Name,
		SenderPhone:    s.opts.Sender.Phone,
		RecipientName:  order.RecipientName,
		RecipientPhone: order.Phone,
		RecipientEmail: order.Email,
		Items:          items,
	}
	if order.DeliveryType != model.DeliveryTypeDoor && order.DeliveryPointCode != "" {
		o.DeliveryPointCode = order.DeliveryPointCode
	} else {
		o.DeliveryCity = order.DeliveryCity
		o.DeliveryCityCode = order.DeliveryCityCode
		o.DeliveryAddress = order.Address
	}
	return o
}

// backoff возвращает экспоненциальную задержку перед попыткой attempts+1.
func (s *Service) backoff(attempts int) time.Duration {
	delay := s.opts.OutboxBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.opts.OutboxMaxDelay {
			return s.opts.OutboxMaxDelay
		}
	}
	return delay
}

// isRetryableJobError отделяет ошибки запроса к СДЭК (неверные данные заказа) от временных.
func isRetryableJobError(err error) bool {
	return !cdek.IsKind(err, cdek.KindRequest) && !cdek.IsKind(err, cdek.KindConfig)
}
