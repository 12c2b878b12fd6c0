package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ruesvertes/internal/model"
)

// GetCart возвращает корзину пользователя вместе с данными товаров.
func (r *PostgresRepository) GetCart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT c.id, c.user_id, c.product_id, c.quantity, c.size, c.color, c.created_at,
			        p.code, p.name, p.price, p.image, p.weight_grams
			 FROM cart_items c
			 JOIN products p ON p.id = c.product_id
			 WHERE c.user_id = $1
			 ORDER BY c.created_at, c.id`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("select cart: %w", err)
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			var it model.CartItem
			if err := rows.Scan(
				&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.Size, &it.Color, &it.CreatedAt,
				&it.Product.Code, &it.Product.Name, &it.Product.Price, &it.Product.Image, &it.Product.WeightGrams,
			); err != nil {
				return fmt.Errorf("scan cart item: %w", err)
			}
			it.Product.ID = it.ProductID
			items = append(items, it)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// AddCartItem добавляет товар в корзину. Если такая позиция (товар, размер, цвет) уже есть,
// количество увеличивается.
func (r *PostgresRepository) AddCartItem(ctx context.Context, item model.CartItem) (int64, error) {
	if item.Quantity < 1 {
		return 0, ErrInvalidQuantity
	}

	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, item.UserID); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO cart_items (user_id, product_id, quantity, size, color)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id, product_id, size, color)
			 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			 RETURNING id`,
			item.UserID, item.ProductID, item.Quantity, item.Size, item.Color,
		).Scan(&id)
		if err != nil {
			if isPgCode(err, pgerrcode.ForeignKeyViolation) {
				return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
			}
			return fmt.Errorf("upsert cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// UpdateCartItem устанавливает количество позиции корзины.
func (r *PostgresRepository) UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE cart_items SET quantity = $3 WHERE id = $1 AND user_id = $2`,
			itemID, userID, quantity,
		)
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCartItemNotFound
		}
		return nil
	})
}

// RemoveCartItem удаляет позицию из корзины.
func (r *PostgresRepository) RemoveCartItem(ctx context.Context, userID, itemID int64) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM cart_items WHERE id = $1 AND user_id = $2`,
			itemID, userID,
		)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCartItemNotFound
		}
		return nil
	})
}

// ClearCart удаляет все позиции корзины пользователя.
func (r *PostgresRepository) ClearCart(ctx context.Context, userID int64) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		if _, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
}

// IsUserSubscribed возвращает подтверждённый признак подписки на рассылку.
// Неизвестный пользователь считается неподписанным.
func (r *PostgresRepository) IsUserSubscribed(ctx context.Context, userID int64) (bool, error) {
	var subscribed bool
	err := r.withRetry(ctx, func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx,
			`SELECT email_subscribed FROM users WHERE id = $1`,
			userID,
		).Scan(&subscribed)
		if errors.Is(err, pgx.ErrNoRows) {
			subscribed = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("select subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return subscribed, nil
}

// SetUserSubscribed сохраняет признак подписки пользователя и его email.
func (r *PostgresRepository) SetUserSubscribed(ctx context.Context, userID int64, email string, subscribed bool) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, email_subscribed) VALUES ($1, NULLIF($2, ''), $3)
			 ON CONFLICT (id) DO UPDATE
			 SET email_subscribed = EXCLUDED.email_subscribed,
			     email = COALESCE(EXCLUDED.email, users.email)`,
			userID, email, subscribed,
		)
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		return nil
	})
}
