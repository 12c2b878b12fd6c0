package service

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/model"
)

// MoscowCityCode соответствует Москве в справочнике СДЭК.
const MoscowCityCode = 44

// SubscriptionDiscountPercent задаёт скидку подписчикам рассылки.
const SubscriptionDiscountPercent = 10

var moscowNames = map[string]struct{}{
	"москва": {},
	"moscow": {},
}

// ProductsTotal возвращает сумму позиций корзины. Результат не зависит от порядка позиций.
func ProductsTotal(items []model.CartItem) model.Money {
	var total model.Money
	for _, it := range items {
		total += it.Product.Price * model.Money(it.Quantity)
	}
	return total
}

// SubscriptionDiscount возвращает скидку подписчика: процент от суммы товаров,
// округлённый до целого рубля (половина вверх).
func SubscriptionDiscount(productsTotal model.Money, subscribed bool) model.Money {
	if !subscribed || productsTotal <= 0 {
		return 0
	}

	rubles := productsTotal.Decimal().
		Mul(decimal.NewFromInt(SubscriptionDiscountPercent)).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return model.Money(rubles.Shift(2).IntPart())
}

// IsMoscow сообщает, является ли пункт назначения Москвой: по коду города СДЭК,
// либо по точному совпадению нормализованного названия.
func IsMoscow(cityCode int, city string) bool {
	if cityCode == MoscowCityCode {
		return true
	}
	_, ok := moscowNames[normalizeCity(city)]
	return ok
}

// normalizeCity приводит название к нижнему регистру, убирает префикс "г." и знаки препинания.
func normalizeCity(city string) string {
	s := strings.ToLower(strings.TrimSpace(city))
	s = strings.TrimPrefix(s, "город ")
	s = strings.TrimPrefix(s, "г.")
	s = strings.TrimPrefix(s, "г ")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// selectTariff выбирает тариф с указанным кодом, иначе самый дешёвый.
func selectTariff(tariffs []cdek.Tariff, code int) (cdek.Tariff, bool) {
	if len(tariffs) == 0 {
		return cdek.Tariff{}, false
	}

	if code != 0 {
		for _, t := range tariffs {
			if t.TariffCode == code {
				return t, true
			}
		}
	}

	best := tariffs[0]
	for _, t := range tariffs[1:] {
		if t.DeliverySum < best.DeliverySum {
			best = t
		}
	}
	return best, true
}

// cartWeight возвращает вес корзины в граммах.
func cartWeight(items []model.CartItem) int {
	total := 0
	for _, it := range items {
		w := it.Product.WeightGrams
		if w <= 0 {
			w = cdek.DefaultItemWeight
		}
		total += w * it.Quantity
	}
	return total
}
