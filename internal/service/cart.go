package service

import (
	"context"

	"github.com/mmeshcher/ruesvertes/internal/model"
	"github.com/mmeshcher/ruesvertes/internal/repository"
)

// Cart описывает корзину пользователя с итоговой суммой.
type Cart struct {
	Items         []model.CartItem
	ProductsTotal model.Money
	Discount      model.Money
}

// GetCart возвращает корзину пользователя и предварительную скидку подписчика.
func (s *Service) GetCart(ctx context.Context, userID int64) (*Cart, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	items, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	subscribed, err := s.repo.IsUserSubscribed(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := ProductsTotal(items)
	return &Cart{
		Items:         items,
		ProductsTotal: total,
		Discount:      SubscriptionDiscount(total, subscribed),
	}, nil
}

// AddToCart добавляет товар в корзину.
func (s *Service) AddToCart(ctx context.Context, userID int64, productID string, quantity int, size, color string) (int64, error) {
	if userID == 0 {
		return 0, ErrUnauthorized
	}
	if quantity < 1 {
		return 0, repository.ErrInvalidQuantity
	}

	return s.repo.AddCartItem(ctx, model.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Size:      size,
		Color:     color,
	})
}

// UpdateCartItem меняет количество позиции корзины.
func (s *Service) UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	if quantity < 1 {
		return repository.ErrInvalidQuantity
	}
	return s.repo.UpdateCartItem(ctx, userID, itemID, quantity)
}

// RemoveCartItem удаляет позицию корзины.
func (s *Service) RemoveCartItem(ctx context.Context, userID, itemID int64) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return s.repo.RemoveCartItem(ctx, userID, itemID)
}

// ClearCart очищает корзину пользователя.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return s.repo.ClearCart(ctx, userID)
}

// SetSubscription сохраняет подписку пользователя на рассылку.
func (s *Service) SetSubscription(ctx context.Context, userID int64, email string, subscribed bool) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	return s.repo.SetUserSubscribed(ctx, userID, email, subscribed)
}

// GetOrdersByUser возвращает список заказов пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetOrder возвращает заказ пользователя.
func (s *Service) GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.repo.GetUserOrder(ctx, userID, orderID)
}
