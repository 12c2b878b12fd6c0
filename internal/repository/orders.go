package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ruesvertes/internal/model"
)

var orderColumns = []string{
	"id", "user_id", "products_total", "discount", "delivery_cost", "total",
	"status", "COALESCE(payment_id, '')", "payment_status",
	"delivery_type", "delivery_tariff", "delivery_tariff_code", "delivery_point_code",
	"delivery_city", "delivery_city_code",
	"recipient_name", "address", "phone", "email",
	"shipment_uuid", "shipment_number", "created_at", "updated_at",
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o             model.Order
		productsTotal int64
		discount      int64
		deliveryCost  int64
		total         int64
		status        string
		paymentStatus string
		deliveryType  string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &productsTotal, &discount, &deliveryCost, &total,
		&status, &o.PaymentID, &paymentStatus,
		&deliveryType, &o.DeliveryTariff, &o.DeliveryTariffCode, &o.DeliveryPointCode,
		&o.DeliveryCity, &o.DeliveryCityCode,
		&o.RecipientName, &o.Address, &o.Phone, &o.Email,
		&o.ShipmentUUID, &o.ShipmentNumber, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.ProductsTotal = model.Money(productsTotal)
	o.Discount = model.Money(discount)
	o.DeliveryCost = model.Money(deliveryCost)
	o.Total = model.Money(total)
	o.Status = model.OrderStatus(status)
	o.PaymentStatus = model.PaymentStatus(paymentStatus)
	o.DeliveryType = model.DeliveryType(deliveryType)

	return &o, nil
}

// CreateOrder сохраняет заказ и его позиции в одной транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, o.UserID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO orders (
				id, user_id, products_total, discount, delivery_cost, total, status, payment_id, payment_status,
				delivery_type, delivery_tariff, delivery_tariff_code, delivery_point_code, delivery_city, delivery_city_code,
				recipient_name, address, phone, email, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			o.ID, o.UserID, int64(o.ProductsTotal), int64(o.Discount), int64(o.DeliveryCost), int64(o.Total),
			string(o.Status), o.PaymentID, string(o.PaymentStatus),
			string(o.DeliveryType), o.DeliveryTariff, o.DeliveryTariffCode, o.DeliveryPointCode, o.DeliveryCity, o.DeliveryCityCode,
			o.RecipientName, o.Address, o.Phone, o.Email, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range o.Items {
			it := &o.Items[i]
			err := tx.QueryRow(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, product_code, quantity, price, size, color, weight_grams)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 RETURNING id`,
				o.ID, it.ProductID, it.ProductName, it.ProductCode, it.Quantity, int64(it.Price), it.Size, it.Color, it.WeightGrams,
			).Scan(&it.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return nil
	})
}

// AttachPayment сохраняет идентификатор и статус платежа заказа.
func (r *PostgresRepository) AttachPayment(ctx context.Context, orderID, paymentID string, status model.PaymentStatus) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE orders SET payment_id = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`,
			orderID, paymentID, string(status),
		)
		if err != nil {
			return fmt.Errorf("attach payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}
		return nil
	})
}

// GetOrder возвращает заказ с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return r.findOrder(ctx, sq.Eq{"id": orderID})
}

// GetUserOrder возвращает заказ, только если он принадлежит пользователю.
func (r *PostgresRepository) GetUserOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	return r.findOrder(ctx, sq.Eq{"id": orderID, "user_id": userID})
}

// FindOrderForPayment ищет заказ сначала по идентификатору платежа, затем по идентификатору заказа.
func (r *PostgresRepository) FindOrderForPayment(ctx context.Context, paymentID, orderID string) (*model.Order, error) {
	if paymentID != "" {
		o, err := r.findOrder(ctx, sq.Eq{"payment_id": paymentID})
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
	}

	if orderID == "" {
		return nil, ErrOrderNotFound
	}
	return r.findOrder(ctx, sq.Eq{"id": orderID})
}

func (r *PostgresRepository) findOrder(ctx context.Context, where sq.Eq) (*model.Order, error) {
	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select order query: %w", err)
	}

	var order *model.Order
	err = r.withRetry(ctx, func(ctx context.Context) error {
		o, err := scanOrder(r.pool.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			// Некорректный UUID означает, что такого заказа нет.
			if isPgCode(err, pgerrcode.InvalidTextRepresentation) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("select order: %w", err)
		}

		items, err := r.orderItems(ctx, o.ID)
		if err != nil {
			return err
		}
		o.Items = items
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PostgresRepository) orderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, product_name, product_code, quantity, price, size, color, weight_grams
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var (
			it    model.OrderItem
			price int64
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.ProductCode, &it.Quantity, &price, &it.Size, &it.Color, &it.WeightGrams); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Price = model.Money(price)
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми. Позиции не загружаются.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select orders query: %w", err)
	}

	return r.queryOrders(ctx, query, args)
}

// GetOrdersAwaitingPayment возвращает заказы с незавершённым платежом, не менявшиеся дольше olderThan.
func (r *PostgresRepository) GetOrdersAwaitingPayment(ctx context.Context, limit int, olderThan time.Duration) ([]model.Order, error) {
	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{
			"status":         string(model.OrderStatusAwaitingPayment),
			"payment_status": []string{string(model.PaymentStatusPending), string(model.PaymentStatusWaitingForCapture)},
		}).
		Where(sq.NotEq{"payment_id": nil}).
		Where(sq.Lt{"updated_at": time.Now().Add(-olderThan)}).
		OrderBy("updated_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build awaiting payment query: %w", err)
	}

	return r.queryOrders(ctx, query, args)
}

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args []interface{}) ([]model.Order, error) {
	var orders []model.Order

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return fmt.Errorf("scan order: %w", err)
			}
			orders = append(orders, *o)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// SetShipment сохраняет ссылку на заказ СДЭК.
func (r *PostgresRepository) SetShipment(ctx context.Context, orderID, shipmentUUID, shipmentNumber string) error {
	query, args, err := psql.Update("orders").
		Set("shipment_uuid", shipmentUUID).
		Set("shipment_number", shipmentNumber).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set shipment query: %w", err)
	}

	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("set shipment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}
		return nil
	})
}
