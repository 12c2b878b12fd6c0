package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ruesvertes/internal/model"
)

// Transition описывает условный переход статуса платежа заказа.
type Transition struct {
	OrderID string
	UserID  int64
	// From содержит допустимые текущие статусы платежа. Переход применяется, только если
	// статус в БД входит в этот список.
	From        []model.PaymentStatus
	To          model.PaymentStatus
	OrderStatus model.OrderStatus
	// PaymentID сохраняется, если у заказа он ещё не записан.
	PaymentID string
	// ClearCart и Jobs применяются в той же транзакции, что и переход.
	ClearCart bool
	Jobs      []model.JobKind
}

// TransitionPayment атомарно меняет статус платежа заказа, если текущий статус
// входит в t.From. Возвращает false, если переход уже выполнен другим обработчиком
// или недопустим.
func (r *PostgresRepository) TransitionPayment(ctx context.Context, t Transition) (bool, error) {
	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}
	if len(from) == 0 {
		return false, nil
	}

	update := psql.Update("orders").
		Set("payment_status", string(t.To)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": t.OrderID, "payment_status": from})
	if t.OrderStatus != "" {
		update = update.Set("status", string(t.OrderStatus))
	}
	if t.PaymentID != "" {
		update = update.Set("payment_id", sq.Expr("COALESCE(payment_id, ?)", t.PaymentID))
	}

	query, args, err := update.ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition query: %w", err)
	}

	var applied bool
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		applied = tag.RowsAffected() == 1
		if !applied {
			return nil
		}

		if t.ClearCart {
			if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, t.UserID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}

		return enqueueJobs(ctx, tx, t.OrderID, t.Jobs)
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

func enqueueJobs(ctx context.Context, tx pgx.Tx, orderID string, kinds []model.JobKind) error {
	if len(kinds) == 0 {
		return nil
	}

	insert := psql.Insert("outbox_jobs").
		Columns("order_id", "kind", "state", "next_attempt_at")
	now := time.Now()
	for _, k := range kinds {
		insert = insert.Values(orderID, string(k), string(model.JobStatePending), now)
	}

	query, args, err := insert.Suffix("ON CONFLICT (order_id, kind) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build enqueue query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("enqueue jobs: %w", err)
	}
	return nil
}
