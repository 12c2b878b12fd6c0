package cdek

import "strings"

// Location описывает населённый пункт или адрес в запросах СДЭК.
type Location struct {
	Code        int     `json:"code,omitempty"`
	FiasGUID    string  `json:"fias_guid,omitempty"`
	PostalCode  string  `json:"postal_code,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	SubRegion   string  `json:"sub_region,omitempty"`
	City        string  `json:"city,omitempty"`
	Address     string  `json:"address,omitempty"`
}

// Money описывает сумму в рублях в формате СДЭК.
type Money struct {
	Value   float64  `json:"value"`
	VatSum  *float64 `json:"vat_sum,omitempty"`
	VatRate *int     `json:"vat_rate,omitempty"`
}

type Phone struct {
	Number     string `json:"number"`
	Additional string `json:"additional,omitempty"`
}

// Contact описывает отправителя или получателя.
type Contact struct {
	Company string  `json:"company,omitempty"`
	Name    string  `json:"name"`
	Email   string  `json:"email,omitempty"`
	Phones  []Phone `json:"phones"`
}

type Service struct {
	Code      string `json:"code"`
	Parameter string `json:"parameter,omitempty"`
}

// Item описывает товар внутри упаковки.
type Item struct {
	Name    string  `json:"name"`
	WareKey string  `json:"ware_key"`
	Payment Money   `json:"payment"`
	Cost    float64 `json:"cost"`
	Weight  int     `json:"weight"`
	Amount  int     `json:"amount"`
	Brand   string  `json:"brand,omitempty"`
	URL     string  `json:"url,omitempty"`
}

// Package описывает грузовое место. Вес в граммах, габариты в сантиметрах.
type Package struct {
	Number  string `json:"number"`
	Weight  int    `json:"weight"`
	Length  int    `json:"length,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Comment string `json:"comment,omitempty"`
	Items   []Item `json:"items,omitempty"`
}

type Seller struct {
	Name    string `json:"name,omitempty"`
	INN     string `json:"inn,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Status struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	DateTime   string `json:"date_time"`
	ReasonCode string `json:"reason_code,omitempty"`
	City       string `json:"city,omitempty"`
}

type Region struct {
	Region      string `json:"region"`
	RegionCode  int    `json:"region_code,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// City описывает населённый пункт из справочника СДЭК. Эндпоинт подсказок заполняет только
// code, city_uuid и full_name.
type City struct {
	Code         int     `json:"code"`
	City         string  `json:"city,omitempty"`
	FullName     string  `json:"full_name,omitempty"`
	CityUUID     string  `json:"city_uuid,omitempty"`
	Region       string  `json:"region,omitempty"`
	RegionCode   int     `json:"region_code,omitempty"`
	SubRegion    string  `json:"sub_region,omitempty"`
	Country      string  `json:"country,omitempty"`
	CountryCode  string  `json:"country_code,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	TimeZone     string  `json:"time_zone,omitempty"`
	PaymentLimit float64 `json:"payment_limit,omitempty"`
}

// Name возвращает название города без региона.
func (c City) Name() string {
	if c.City != "" {
		return c.City
	}
	name, _, _ := strings.Cut(c.FullName, ",")
	return strings.TrimSpace(name)
}

// DeliveryPoint описывает пункт выдачи заказов (ПВЗ) или постамат.
type DeliveryPoint struct {
	Code                string    `json:"code"`
	Name                string    `json:"name"`
	Location            *Location `json:"location,omitempty"`
	AddressComment      string    `json:"address_comment,omitempty"`
	NearestStation      string    `json:"nearest_station,omitempty"`
	NearestMetroStation string    `json:"nearest_metro_station,omitempty"`
	WorkTime            string    `json:"work_time,omitempty"`
	Phones              []Phone   `json:"phones,omitempty"`
	Email               string    `json:"email,omitempty"`
	Note                string    `json:"note,omitempty"`
	Type                string    `json:"type,omitempty"`
	OwnerCode           string    `json:"owner_code,omitempty"`
	TakeOnly            bool      `json:"take_only"`
	IsHandout           bool      `json:"is_handout"`
	IsReception         bool      `json:"is_reception"`
	IsDressingRoom      bool      `json:"is_dressing_room"`
	HaveCashless        bool      `json:"have_cashless"`
	HaveCash            bool      `json:"have_cash"`
	AllowedCod          bool      `json:"allowed_cod"`
	WeightMin           float64   `json:"weight_min,omitempty"`
	WeightMax           float64   `json:"weight_max,omitempty"`
}

// TariffRequest описывает запрос расчёта стоимости доставки.
type TariffRequest struct {
	Type         int       `json:"type,omitempty"`
	Date         string    `json:"date,omitempty"`
	Currency     int       `json:"currency,omitempty"`
	Lang         string    `json:"lang,omitempty"`
	TariffCode   int       `json:"tariff_code,omitempty"`
	FromLocation Location  `json:"from_location"`
	ToLocation   Location  `json:"to_location"`
	Packages     []Package `json:"packages"`
	Services     []Service `json:"services,omitempty"`
}

// Tariff описывает рассчитанный тариф. DeliveryMode: 1 дверь-дверь, 2 дверь-склад и т.д.
type Tariff struct {
	TariffCode        int     `json:"tariff_code"`
	TariffName        string  `json:"tariff_name"`
	TariffDescription string  `json:"tariff_description,omitempty"`
	DeliveryMode      int     `json:"delivery_mode"`
	DeliverySum       float64 `json:"delivery_sum"`
	PeriodMin         int     `json:"period_min"`
	PeriodMax         int     `json:"period_max"`
	CalendarMin       int     `json:"calendar_min,omitempty"`
	CalendarMax       int     `json:"calendar_max,omitempty"`
}

type tariffListResponse struct {
	TariffCodes []Tariff   `json:"tariff_codes"`
	Errors      []APIError `json:"errors,omitempty"`
}

type tariffResponse struct {
	Tariff
	TotalSum float64    `json:"total_sum"`
	Errors   []APIError `json:"errors,omitempty"`
}

// OrderRequest используется для регистрации и изменения заказа в СДЭК.
// DeliveryPoint и ToLocation взаимоисключающие.
type OrderRequest struct {
	UUID                  string    `json:"uuid,omitempty"`
	Type                  int       `json:"type,omitempty"`
	Number                string    `json:"number,omitempty"`
	TariffCode            int       `json:"tariff_code,omitempty"`
	Comment               string    `json:"comment,omitempty"`
	ShipmentPoint         string    `json:"shipment_point,omitempty"`
	DeliveryPoint         string    `json:"delivery_point,omitempty"`
	Date                  string    `json:"date,omitempty"`
	Recipient             *Contact  `json:"recipient,omitempty"`
	Sender                *Contact  `json:"sender,omitempty"`
	FromLocation          *Location `json:"from_location,omitempty"`
	ToLocation            *Location `json:"to_location,omitempty"`
	Packages              []Package `json:"packages,omitempty"`
	Services              []Service `json:"services,omitempty"`
	Seller                *Seller   `json:"seller,omitempty"`
	DeliveryRecipientCost *Money    `json:"delivery_recipient_cost,omitempty"`
	RecipientCurrency     string    `json:"recipient_currency,omitempty"`
	ItemsCurrency         string    `json:"items_currency,omitempty"`
}

// OrderEntity описывает заказ в ответах СДЭК.
type OrderEntity struct {
	UUID          string    `json:"uuid"`
	CDEKNumber    string    `json:"cdek_number,omitempty"`
	Number        string    `json:"number,omitempty"`
	TariffCode    int       `json:"tariff_code,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	DeliveryPoint string    `json:"delivery_point,omitempty"`
	Statuses      []Status  `json:"statuses,omitempty"`
	ToLocation    *Location `json:"to_location,omitempty"`
}

// RequestInfo описывает состояние асинхронного запроса к СДЭК.
type RequestInfo struct {
	RequestUUID string     `json:"request_uuid"`
	Type        string     `json:"type"`
	DateTime    string     `json:"date_time,omitempty"`
	State       string     `json:"state"`
	Errors      []APIError `json:"errors,omitempty"`
	Warnings    []APIError `json:"warnings,omitempty"`
}

// OrderResponse возвращается операциями с заказом.
type OrderResponse struct {
	Entity   *OrderEntity  `json:"entity,omitempty"`
	Requests []RequestInfo `json:"requests,omitempty"`
}

// Invalid сообщает, отклонён ли запрос СДЭК, и возвращает ошибки.
func (r *OrderResponse) Invalid() ([]APIError, bool) {
	for _, req := range r.Requests {
		if req.State == "INVALID" {
			return req.Errors, true
		}
	}
	return nil, false
}
