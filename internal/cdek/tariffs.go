package cdek

import (
	"context"
	"net/http"
)

const (
	// OrderTypeShop обозначает заказ интернет-магазина.
	OrderTypeShop = 1

	defaultWeightGrams = 1000

	// Габариты коробки магазина, см. Одинаковы для расчёта тарифа и для отгрузки.
	shopPackageLength = 30
	shopPackageWidth  = 20
	shopPackageHeight = 10
)

// shopPackage возвращает единственное место отправления в коробке магазина.
func shopPackage(weightGrams int) Package {
	return Package{
		Number: "1",
		Weight: weightGrams,
		Length: shopPackageLength,
		Width:  shopPackageWidth,
		Height: shopPackageHeight,
	}
}

// CalculateTariffs возвращает все доступные тарифы между двумя локациями.
// Локации, заданные только названием города, дополняются кодом СДЭК.
func (c *Client) CalculateTariffs(ctx context.Context, req TariffRequest) ([]Tariff, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if req.Type == 0 {
		req.Type = OrderTypeShop
	}

	c.resolveLocation(ctx, &req.FromLocation)
	c.resolveLocation(ctx, &req.ToLocation)

	var resp tariffListResponse
	if err := c.do(ctx, http.MethodPost, "/calculator/tarifflist", nil, req, &resp, true); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &Error{Kind: KindRequest, Message: joinAPIErrors(resp.Errors)}
	}
	if resp.TariffCodes == nil {
		return []Tariff{}, nil
	}
	return resp.TariffCodes, nil
}

// CalculateTariff рассчитывает стоимость по конкретному тарифу.
func (c *Client) CalculateTariff(ctx context.Context, req TariffRequest) (*Tariff, error) {
	if req.TariffCode == 0 {
		return nil, &Error{Kind: KindRequest, Message: "tariff_code is required"}
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if req.Type == 0 {
		req.Type = OrderTypeShop
	}

	c.resolveLocation(ctx, &req.FromLocation)
	c.resolveLocation(ctx, &req.ToLocation)

	var resp tariffResponse
	if err := c.do(ctx, http.MethodPost, "/calculator/tariff", nil, req, &resp, true); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, &Error{Kind: KindRequest, Message: joinAPIErrors(resp.Errors)}
	}

	t := resp.Tariff
	if t.TariffCode == 0 {
		t.TariffCode = req.TariffCode
	}
	if t.DeliverySum == 0 && resp.TotalSum > 0 {
		t.DeliverySum = resp.TotalSum
	}
	return &t, nil
}

// TariffsForCity рассчитывает тарифы для одной посылки в коробке магазина.
// Нулевой вес заменяется на 1 кг.
func (c *Client) TariffsForCity(ctx context.Context, fromCity, toCity string, toCityCode, weightGrams int) ([]Tariff, error) {
	if weightGrams <= 0 {
		weightGrams = defaultWeightGrams
	}

	return c.CalculateTariffs(ctx, TariffRequest{
		Type:         OrderTypeShop,
		FromLocation: Location{City: fromCity, Address: fromCity},
		ToLocation:   Location{Code: toCityCode, City: toCity, Address: toCity},
		Packages:     []Package{shopPackage(weightGrams)},
	})
}
