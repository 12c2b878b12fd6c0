package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
	"github.com/mmeshcher/ruesvertes/internal/model"
)

func TestProductsTotal_OrderIndependent(t *testing.T) {
	a := model.CartItem{Quantity: 2, Product: model.Product{Price: 99900}}
	b := model.CartItem{Quantity: 1, Product: model.Product{Price: 150050}}
	c := model.CartItem{Quantity: 3, Product: model.Product{Price: 1}}

	want := model.Money(2*99900 + 150050 + 3)
	assert.Equal(t, want, ProductsTotal([]model.CartItem{a, b, c}))
	assert.Equal(t, want, ProductsTotal([]model.CartItem{c, a, b}))
	assert.Equal(t, want, ProductsTotal([]model.CartItem{b, c, a}))
	assert.Equal(t, model.Money(0), ProductsTotal(nil))
}

func TestSubscriptionDiscount(t *testing.T) {
	tests := []struct {
		name       string
		total      model.Money
		subscribed bool
		want       model.Money
	}{
		{name: "not subscribed", total: 100000, subscribed: false, want: 0},
		{name: "ten percent", total: 50000, subscribed: true, want: 5000},
		{name: "rounded down", total: 123400, subscribed: true, want: 12300},
		{name: "half rounds up", total: 12500, subscribed: true, want: 1300},
		{name: "kopecks", total: 99999, subscribed: true, want: 10000},
		{name: "empty cart", total: 0, subscribed: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubscriptionDiscount(tt.total, tt.subscribed))
		})
	}
}

func TestIsMoscow(t *testing.T) {
	tests := []struct {
		city string
		code int
		want bool
	}{
		{city: "Москва", want: true},
		{city: "москва", want: true},
		{city: "MOSCOW", want: true},
		{city: "г. Москва", want: true},
		{city: "город Москва", want: true},
		{city: "  Москва, ", want: true},
		{city: "", code: 44, want: true},
		{city: "Москвин", want: false},
		{city: "Московский", want: false},
		{city: "Новосибирск", code: 270, want: false},
		{city: "", want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsMoscow(tt.code, tt.city), "city %q code %d", tt.city, tt.code)
	}
}

func TestSelectTariff(t *testing.T) {
	tariffs := []cdek.Tariff{
		{TariffCode: 137, DeliverySum: 450},
		{TariffCode: 136, DeliverySum: 300},
		{TariffCode: 138, DeliverySum: 520},
	}

	got, ok := selectTariff(tariffs, 138)
	assert.True(t, ok)
	assert.Equal(t, 138, got.TariffCode)

	got, ok = selectTariff(tariffs, 0)
	assert.True(t, ok)
	assert.Equal(t, 136, got.TariffCode)

	got, ok = selectTariff(tariffs, 999)
	assert.True(t, ok)
	assert.Equal(t, 136, got.TariffCode)

	_, ok = selectTariff(nil, 136)
	assert.False(t, ok)
}

func TestCartWeight(t *testing.T) {
	items := []model.CartItem{
		{Quantity: 2, Product: model.Product{WeightGrams: 250}},
		{Quantity: 1, Product: model.Product{}},
	}
	assert.Equal(t, 500+cdek.DefaultItemWeight, cartWeight(items))
}
