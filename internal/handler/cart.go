package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/model"
)

type productResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code,omitempty"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Image string `json:"image,omitempty"`
}

type cartItemResponse struct {
	ID       int64           `json:"id"`
	Quantity int             `json:"quantity"`
	Size     string          `json:"size,omitempty"`
	Color    string          `json:"color,omitempty"`
	Product  productResponse `json:"product"`
}

type cartResponse struct {
	Items         []cartItemResponse `json:"items"`
	ProductsTotal string             `json:"productsTotal"`
	Discount      string             `json:"discount"`
}

// GetCart возвращает корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "get cart error", zap.Int64("userID", userID))
		return
	}

	resp := cartResponse{
		Items:         make([]cartItemResponse, 0, len(cart.Items)),
		ProductsTotal: cart.ProductsTotal.String(),
		Discount:      cart.Discount.String(),
	}
	for _, it := range cart.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			ID:       it.ID,
			Quantity: it.Quantity,
			Size:     it.Size,
			Color:    it.Color,
			Product: productResponse{
				ID:    it.Product.ID,
				Code:  it.Product.Code,
				Name:  it.Product.Name,
				Price: it.Product.Price.String(),
				Image: it.Product.Image,
			},
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type addToCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"  validate:"gte=1,lte=99"`
	Size      string `json:"size"      validate:"max=32"`
	Color     string `json:"color"     validate:"max=64"`
}

// AddToCart добавляет товар в корзину.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req addToCartRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.service.AddToCart(r.Context(), userID, req.ProductID, req.Quantity, req.Size, req.Color)
	if err != nil {
		h.writeServiceError(w, err, "add to cart error", zap.Int64("userID", userID), zap.String("productID", req.ProductID))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=99"`
}

// UpdateCartItem меняет количество позиции корзины.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.UpdateCartItem(r.Context(), userID, itemID, req.Quantity); err != nil {
		h.writeServiceError(w, err, "update cart item error", zap.Int64("userID", userID), zap.Int64("itemID", itemID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveCartItem удаляет позицию корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveCartItem(r.Context(), userID, itemID); err != nil {
		h.writeServiceError(w, err, "remove cart item error", zap.Int64("userID", userID), zap.Int64("itemID", itemID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearCart(r.Context(), userID); err != nil {
		h.writeServiceError(w, err, "clear cart error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func itemIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Некорректный идентификатор позиции")
		return 0, false
	}
	return id, true
}

type subscriptionRequest struct {
	Email      string `json:"email"      validate:"required,email"`
	Subscribed bool   `json:"subscribed"`
}

// SetSubscription включает или выключает подписку на рассылку.
func (h *Handler) SetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req subscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SetSubscription(r.Context(), userID, req.Email, req.Subscribed); err != nil {
		h.writeServiceError(w, err, "set subscription error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type orderItemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"paymentStatus"`
	ProductsTotal  string              `json:"productsTotal"`
	Discount       string              `json:"discount"`
	DeliveryCost   string              `json:"deliveryCost"`
	Total          string              `json:"total"`
	DeliveryType   string              `json:"deliveryType,omitempty"`
	DeliveryTariff string              `json:"deliveryTariff,omitempty"`
	Address        string              `json:"address"`
	RecipientName  string              `json:"recipientName"`
	Phone          string              `json:"phone"`
	Email          string              `json:"email,omitempty"`
	ShipmentNumber string              `json:"shipmentNumber,omitempty"`
	Items          []orderItemResponse `json:"items,omitempty"`
	CreatedAt      string              `json:"createdAt"`
}

func newOrderResponse(o model.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		ProductsTotal:  o.ProductsTotal.String(),
		Discount:       o.Discount.String(),
		DeliveryCost:   o.DeliveryCost.String(),
		Total:          o.Total.String(),
		DeliveryType:   string(o.DeliveryType),
		DeliveryTariff: o.DeliveryTariff,
		Address:        o.Address,
		RecipientName:  o.RecipientName,
		Phone:          o.Phone,
		Email:          o.Email,
		ShipmentNumber: o.ShipmentNumber,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Code:      it.ProductCode,
			Quantity:  it.Quantity,
			Price:     it.Price.String(),
			Size:      it.Size,
			Color:     it.Color,
		})
	}
	return resp
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "get orders error", zap.Int64("userID", userID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "orderID")
	order, err := h.service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(w, err, "get order error", zap.Int64("userID", userID), zap.String("orderID", orderID))
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(*order))
}
