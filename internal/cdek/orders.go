package cdek

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const (
	maxOrderNumber = 40
	maxWareKey     = 20
	maxItemName    = 255

	// DefaultItemWeight используется для товаров без указанного веса, граммы.
	DefaultItemWeight = 300
)

// CreateOrder регистрирует заказ. Запрос не повторяется автоматически:
// повтор регистрации может создать дубликат.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	var resp OrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, &resp, false); err != nil {
		return nil, err
	}
	if errs, invalid := resp.Invalid(); invalid {
		return nil, &Error{Kind: KindRequest, Message: joinAPIErrors(errs)}
	}
	return &resp, nil
}

// GetOrder возвращает заказ по UUID СДЭК.
func (c *Client) GetOrder(ctx context.Context, uuid string) (*OrderResponse, error) {
	var resp OrderResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(uuid), nil, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindOrderByNumber ищет заказ по номеру в системе магазина.
func (c *Client) FindOrderByNumber(ctx context.Context, number string) (*OrderResponse, error) {
	v := url.Values{}
	v.Set("im_number", truncate(number, maxOrderNumber))

	var resp OrderResponse
	if err := c.do(ctx, http.MethodGet, "/orders", v, nil, &resp, true); err != nil {
		return nil, err
	}
	if resp.Entity == nil || resp.Entity.UUID == "" {
		return nil, &Error{Kind: KindNotFound, Message: "order " + number}
	}
	return &resp, nil
}

// UpdateOrder изменяет заказ. UUID обязателен.
func (c *Client) UpdateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.UUID == "" {
		return nil, &Error{Kind: KindRequest, Message: "uuid is required"}
	}

	var resp OrderResponse
	if err := c.do(ctx, http.MethodPatch, "/orders", nil, req, &resp, true); err != nil {
		return nil, err
	}
	if errs, invalid := resp.Invalid(); invalid {
		return nil, &Error{Kind: KindRequest, Message: joinAPIErrors(errs)}
	}
	return &resp, nil
}

// DeleteOrder удаляет заказ, пока он не передан в доставку.
func (c *Client) DeleteOrder(ctx context.Context, uuid string) error {
	var resp OrderResponse
	if err := c.do(ctx, http.MethodDelete, "/orders/"+url.PathEscape(uuid), nil, nil, &resp, true); err != nil {
		return err
	}
	if errs, invalid := resp.Invalid(); invalid {
		return &Error{Kind: KindRequest, Message: joinAPIErrors(errs)}
	}
	return nil
}

// RefuseOrder регистрирует отказ получателя от заказа.
func (c *Client) RefuseOrder(ctx context.Context, uuid, reason string) (*OrderResponse, error) {
	body := struct {
		Reason string `json:"reason,omitempty"`
	}{Reason: reason}

	var resp OrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(uuid)+"/refusal", nil, body, &resp, false); err != nil {
		return nil, err
	}
	if errs, invalid := resp.Invalid(); invalid {
		return nil, &Error{Kind: KindRequest, Message: joinAPIErrors(errs)}
	}
	return &resp, nil
}

// ShopOrderItem описывает позицию заказа магазина.
type ShopOrderItem struct {
	Name    string
	WareKey string
	// Cost: объявленная стоимость единицы, рубли.
	Cost float64
	// Weight: вес единицы, граммы.
	Weight int
	Amount int
}

// ShopOrder содержит данные для регистрации предоплаченного заказа интернет-магазина.
type ShopOrder struct {
	OrderID    string
	TariffCode int

	SenderCity    string
	SenderAddress string
	SenderName    string
	SenderPhone   string

	RecipientName  string
	RecipientPhone string
	RecipientEmail string

	// DeliveryPointCode задаёт доставку до ПВЗ, иначе курьером по адресу.
	DeliveryPointCode string
	DeliveryCity      string
	DeliveryCityCode  int
	DeliveryAddress   string

	Items   []ShopOrderItem
	Comment string
}

// BuildShopOrder формирует запрос регистрации заказа: одна упаковка 30×20×10 см,
// оплата получателем не взимается.
func BuildShopOrder(o ShopOrder) OrderRequest {
	items := make([]Item, 0, len(o.Items))
	total := 0
	for _, it := range o.Items {
		weight := it.Weight
		if weight <= 0 {
			weight = DefaultItemWeight
		}
		amount := it.Amount
		if amount <= 0 {
			amount = 1
		}
		items = append(items, Item{
			Name:    truncate(it.Name, maxItemName),
			WareKey: truncate(it.WareKey, maxWareKey),
			Payment: Money{Value: 0},
			Cost:    it.Cost,
			Weight:  weight,
			Amount:  amount,
		})
		total += weight * amount
	}

	comment := o.Comment
	if comment == "" {
		comment = fmt.Sprintf("Заказ %s", o.OrderID)
	}

	pkg := shopPackage(total)
	pkg.Items = items

	req := OrderRequest{
		Type:       OrderTypeShop,
		Number:     truncate(o.OrderID, maxOrderNumber),
		TariffCode: o.TariffCode,
		Comment:    comment,
		Sender: &Contact{
			Name:   o.SenderName,
			Phones: []Phone{{Number: o.SenderPhone}},
		},
		Recipient: &Contact{
			Name:   o.RecipientName,
			Email:  o.RecipientEmail,
			Phones: []Phone{{Number: o.RecipientPhone}},
		},
		FromLocation: &Location{City: o.SenderCity, Address: o.SenderAddress},
		Packages:     []Package{pkg},
	}

	if o.DeliveryPointCode != "" {
		req.DeliveryPoint = o.DeliveryPointCode
	} else {
		req.ToLocation = &Location{
			Code:    o.DeliveryCityCode,
			City:    o.DeliveryCity,
			Address: o.DeliveryAddress,
		}
	}

	return req
}

// CreateShopOrder регистрирует заказ магазина в СДЭК.
func (c *Client) CreateShopOrder(ctx context.Context, o ShopOrder) (*OrderResponse, error) {
	c.logger.Sugar().Infow("creating cdek shipment", "orderID", o.OrderID, "tariff", o.TariffCode)
	return c.CreateOrder(ctx, BuildShopOrder(o))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
