package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/model"
	"github.com/mmeshcher/ruesvertes/internal/repository"
	"github.com/mmeshcher/ruesvertes/internal/service"
	"github.com/mmeshcher/ruesvertes/internal/yookassa"
)

const maxWebhookBody = 1 << 20

// checkoutRequest не содержит скидки: она вычисляется на сервере по подписке.
type checkoutRequest struct {
	RecipientName      string `json:"recipientName"      validate:"required,max=255"`
	Address            string `json:"address"            validate:"max=500"`
	Phone              string `json:"phone"              validate:"required,max=32"`
	Email              string `json:"email"              validate:"omitempty,email"`
	DeliveryType       string `json:"deliveryType"       validate:"omitempty,oneof=office door pickup"`
	DeliveryTariff     string `json:"deliveryTariff"     validate:"max=255"`
	DeliveryTariffCode int    `json:"deliveryTariffCode" validate:"gte=0"`
	DeliveryPointCode  string `json:"deliveryPointCode"  validate:"max=64"`
	DeliveryCity       string `json:"deliveryCity"       validate:"max=255"`
	DeliveryCityCode   int    `json:"deliveryCityCode"   validate:"gte=0"`
	DeliveryAddress    string `json:"deliveryAddress"    validate:"max=500"`
}

func (req checkoutRequest) toService(userID int64) service.CheckoutRequest {
	return service.CheckoutRequest{
		UserID:             userID,
		RecipientName:      req.RecipientName,
		Address:            req.Address,
		Phone:              req.Phone,
		Email:              req.Email,
		DeliveryType:       model.DeliveryType(req.DeliveryType),
		DeliveryTariff:     req.DeliveryTariff,
		DeliveryTariffCode: req.DeliveryTariffCode,
		DeliveryPointCode:  req.DeliveryPointCode,
		DeliveryCity:       req.DeliveryCity,
		DeliveryCityCode:   req.DeliveryCityCode,
		DeliveryAddress:    req.DeliveryAddress,
	}
}

type checkoutResponse struct {
	OrderID         string `json:"orderId"`
	PaymentID       string `json:"paymentId"`
	ConfirmationURL string `json:"confirmationUrl"`
	Total           string `json:"total"`
	DeliveryCost    string `json:"deliveryCost"`
	Discount        string `json:"discount"`
}

// Checkout оформляет заказ по корзине и возвращает ссылку на оплату.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Checkout(r.Context(), req.toService(userID))
	if err != nil {
		h.writeServiceError(w, err, "checkout error", zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		OrderID:         res.OrderID,
		PaymentID:       res.PaymentID,
		ConfirmationURL: res.ConfirmationURL,
		Total:           res.Total.String(),
		DeliveryCost:    res.DeliveryCost.String(),
		Discount:        res.Discount.String(),
	})
}

type quoteRequest struct {
	DeliveryType       string `json:"deliveryType"       validate:"omitempty,oneof=office door pickup"`
	DeliveryTariffCode int    `json:"deliveryTariffCode" validate:"gte=0"`
	DeliveryCity       string `json:"deliveryCity"       validate:"max=255"`
	DeliveryCityCode   int    `json:"deliveryCityCode"   validate:"gte=0"`
}

type quoteResponse struct {
	ProductsTotal      string `json:"productsTotal"`
	Discount           string `json:"discount"`
	DeliveryCost       string `json:"deliveryCost"`
	DeliveryTariff     string `json:"deliveryTariff,omitempty"`
	DeliveryTariffCode int    `json:"deliveryTariffCode,omitempty"`
	Total              string `json:"total"`
}

// Quote рассчитывает итог заказа без его создания.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	q, err := h.service.Quote(r.Context(), service.CheckoutRequest{
		UserID:             userID,
		DeliveryType:       model.DeliveryType(req.DeliveryType),
		DeliveryTariffCode: req.DeliveryTariffCode,
		DeliveryCity:       req.DeliveryCity,
		DeliveryCityCode:   req.DeliveryCityCode,
	})
	if err != nil {
		h.writeServiceError(w, err, "quote error", zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		ProductsTotal:      q.ProductsTotal.String(),
		Discount:           q.Discount.String(),
		DeliveryCost:       q.DeliveryCost.String(),
		DeliveryTariff:     q.DeliveryTariff,
		DeliveryTariffCode: q.DeliveryTariffCode,
		Total:              q.Total.String(),
	})
}

type paymentStatusResponse struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Total         string `json:"total"`
}

// PaymentStatus возвращает состояние оплаты заказа для страницы возврата из ЮKassa.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Не указан orderId")
		return
	}

	state, err := h.service.PaymentStatus(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(w, err, "payment status error", zap.Int64("userID", userID), zap.String("orderID", orderID))
		return
	}

	writeJSON(w, http.StatusOK, paymentStatusResponse{
		OrderID:       state.OrderID,
		Status:        string(state.Status),
		PaymentStatus: string(state.PaymentStatus),
		Total:         state.Total.String(),
	})
}

// PaymentWebhook принимает уведомления ЮKassa. Повторные и неизвестные события
// подтверждаются кодом 200, чтобы ЮKassa не повторяла их.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "webhook_malformed", "Не удалось прочитать уведомление")
		return
	}

	n, err := yookassa.ParseNotification(body)
	if err != nil {
		h.logger.Warn("malformed webhook", zap.Error(err))
		writeError(w, http.StatusBadRequest, "webhook_malformed", "Некорректное уведомление")
		return
	}

	res, err := h.service.HandleNotification(r.Context(), n)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "webhook_order_missing", "Заказ не найден")
			return
		}
		if errors.Is(err, service.ErrPaymentMismatch) {
			writeError(w, http.StatusBadRequest, "webhook_unverified", "Уведомление не подтверждено платёжным шлюзом")
			return
		}
		h.logger.Error("webhook processing error",
			zap.String("event", n.Event),
			zap.String("paymentID", n.PaymentID()),
			zap.String("orderID", n.OrderID()),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "Ошибка обработки уведомления")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"outcome": res.Outcome.String(),
	})
}
