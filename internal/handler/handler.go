// Package handler содержит HTTP-обработчики API магазина RUES VERTES.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/middleware"
	"github.com/mmeshcher/ruesvertes/internal/model"
	"github.com/mmeshcher/ruesvertes/internal/repository"
	"github.com/mmeshcher/ruesvertes/internal/service"
	"github.com/mmeshcher/ruesvertes/internal/yookassa"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	GetCart(ctx context.Context, userID int64) (*service.Cart, error)
	AddToCart(ctx context.Context, userID int64, productID string, quantity int, size, color string) (int64, error)
	UpdateCartItem(ctx context.Context, userID, itemID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) error
	SetSubscription(ctx context.Context, userID int64, email string, subscribed bool) error

	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error)

	Quote(ctx context.Context, req service.CheckoutRequest) (*service.Quote, error)
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	PaymentStatus(ctx context.Context, userID int64, orderID string) (*service.PaymentState, error)
	HandleNotification(ctx context.Context, n *yookassa.Notification) (service.Reconciliation, error)
}

// Delivery описывает справочники СДЭК, которые проксируются на витрину.
type Delivery interface {
	Regions(ctx context.Context, q cdek.RegionsQuery) ([]cdek.Region, error)
	SuggestCities(ctx context.Context, name string, size int) ([]cdek.City, error)
	Cities(ctx context.Context, q cdek.CitiesQuery) ([]cdek.City, error)
	DeliveryPoints(ctx context.Context, q cdek.DeliveryPointsQuery) ([]cdek.DeliveryPoint, error)
	CalculateTariffs(ctx context.Context, req cdek.TariffRequest) ([]cdek.Tariff, error)
	TariffsForCity(ctx context.Context, fromCity, toCity string, toCityCode, weightGrams int) ([]cdek.Tariff, error)
}

// Options задаёт параметры маршрутизатора.
type Options struct {
	CORSOrigins []string
	// WebhookIPCheck включает проверку адреса отправителя уведомлений ЮKassa.
	WebhookIPCheck bool
	SenderCity     string
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service        Service
	delivery       Delivery
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
	opts           Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, delivery Delivery, logger *zap.Logger, auth *middleware.AuthMiddleware, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SenderCity == "" {
		opts.SenderCity = "Москва"
	}

	return &Handler{
		service:        s,
		delivery:       delivery,
		logger:         logger,
		authMiddleware: auth,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		opts:           opts,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// errorStatus сопоставляет ошибку бизнес-логики HTTP-статусу и коду ошибки API.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "Требуется авторизация"
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart", "Корзина пуста"
	case errors.Is(err, service.ErrInvalidContact):
		return http.StatusBadRequest, "invalid_request", "Проверьте имя и телефон получателя"
	case errors.Is(err, service.ErrNegativeTotal):
		return http.StatusUnprocessableEntity, "negative_total", "Некорректная сумма заказа"
	case errors.Is(err, repository.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_request", "Количество должно быть не меньше 1"
	case errors.Is(err, repository.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found", "Товар не найден"
	case errors.Is(err, repository.ErrCartItemNotFound):
		return http.StatusNotFound, "cart_item_not_found", "Позиция корзины не найдена"
	case errors.Is(err, repository.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found", "Заказ не найден"
	case errors.Is(err, repository.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "Этот email уже используется другим покупателем"
	case cdek.IsKind(err, cdek.KindConfig):
		return http.StatusInternalServerError, "carrier_config_missing", "Доставка СДЭК не настроена"
	case cdek.IsKind(err, cdek.KindAuth):
		return http.StatusBadGateway, "carrier_auth_error", "Ошибка авторизации в СДЭК"
	}

	switch yookassa.KindOf(err) {
	case yookassa.KindNotConfigured:
		return http.StatusInternalServerError, "payment_config_missing", "Оплата не настроена"
	case yookassa.KindAuth:
		return http.StatusUnauthorized, "payment_auth_error", "Ошибка авторизации платёжного сервиса"
	case yookassa.KindNetwork, yookassa.KindTimeout:
		return http.StatusServiceUnavailable, "payment_transient", "Платёжный сервис временно недоступен, попробуйте позже"
	case yookassa.KindRequest, yookassa.KindUnexpected:
		return http.StatusBadGateway, "payment_error", "Не удалось создать платёж"
	}

	return http.StatusInternalServerError, "internal_error", "Внутренняя ошибка сервера"
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status, code, message := errorStatus(err)
	if status >= http.StatusInternalServerError || code == "payment_auth_error" {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	} else {
		h.logger.Info(msg, append(fields, zap.Error(err))...)
	}
	writeError(w, status, code, message)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Некорректное тело запроса")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Некорректные параметры запроса"
	}
	return "Некорректное поле " + verrs[0].Field()
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok || userID == 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Требуется авторизация")
		return 0, false
	}
	return userID, true
}

// Healthz проверяет доступность хранилища.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "База данных недоступна")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
