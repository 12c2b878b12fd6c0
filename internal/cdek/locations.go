package cdek

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// RegionsQuery задаёт фильтры справочника регионов.
type RegionsQuery struct {
	CountryCodes []string
	RegionCode   int
	Page         int
	Size         int
}

func (q RegionsQuery) values() url.Values {
	v := url.Values{}
	for _, cc := range q.CountryCodes {
		v.Add("country_codes", cc)
	}
	setInt(v, "region_code", q.RegionCode)
	setInt(v, "page", q.Page)
	setInt(v, "size", q.Size)
	return v
}

// CitiesQuery задаёт фильтры справочника населённых пунктов.
type CitiesQuery struct {
	CountryCodes []string
	RegionCode   int
	City         string
	Code         int
	PostalCode   string
	Page         int
	Size         int
	Lang         string
}

func (q CitiesQuery) values() url.Values {
	v := url.Values{}
	for _, cc := range q.CountryCodes {
		v.Add("country_codes", cc)
	}
	setInt(v, "region_code", q.RegionCode)
	setString(v, "city", q.City)
	setInt(v, "code", q.Code)
	setString(v, "postal_code", q.PostalCode)
	setInt(v, "page", q.Page)
	setInt(v, "size", q.Size)
	setString(v, "lang", q.Lang)
	return v
}

// DeliveryPointsQuery задаёт фильтры списка пунктов выдачи.
type DeliveryPointsQuery struct {
	// Type: PVZ, POSTAMAT или ALL.
	Type         string
	CityCode     int
	City         string
	RegionCode   int
	CountryCodes []string
	PostalCode   string
	Code         string
	Page         int
	Size         int
	Lang         string

	IsHandout      *bool
	HaveCashless   *bool
	HaveCash       *bool
	AllowedCod     *bool
	IsDressingRoom *bool
}

func (q DeliveryPointsQuery) values() url.Values {
	v := url.Values{}
	setString(v, "type", q.Type)
	setInt(v, "city_code", q.CityCode)
	setString(v, "city", q.City)
	setInt(v, "region_code", q.RegionCode)
	for _, cc := range q.CountryCodes {
		v.Add("country_codes", cc)
	}
	setString(v, "postal_code", q.PostalCode)
	setString(v, "code", q.Code)
	setInt(v, "page", q.Page)
	setInt(v, "size", q.Size)
	setString(v, "lang", q.Lang)
	setBool(v, "is_handout", q.IsHandout)
	setBool(v, "have_cashless", q.HaveCashless)
	setBool(v, "have_cash", q.HaveCash)
	setBool(v, "allowed_cod", q.AllowedCod)
	setBool(v, "is_dressing_room", q.IsDressingRoom)
	return v
}

// Regions возвращает список регионов.
func (c *Client) Regions(ctx context.Context, q RegionsQuery) ([]Region, error) {
	var regions []Region
	if err := c.do(ctx, http.MethodGet, "/location/regions", q.values(), nil, &regions, true); err != nil {
		return nil, err
	}
	return regions, nil
}

// SuggestCities возвращает подсказки населённых пунктов по части названия.
func (c *Client) SuggestCities(ctx context.Context, name string, size int) ([]City, error) {
	v := url.Values{}
	v.Set("name", name)
	setInt(v, "size", size)

	var cities []City
	if err := c.do(ctx, http.MethodGet, "/location/suggest/cities", v, nil, &cities, true); err != nil {
		return nil, err
	}
	return cities, nil
}

// Cities возвращает населённые пункты по фильтру.
func (c *Client) Cities(ctx context.Context, q CitiesQuery) ([]City, error) {
	var cities []City
	if err := c.do(ctx, http.MethodGet, "/location/cities", q.values(), nil, &cities, true); err != nil {
		return nil, err
	}
	return cities, nil
}

// DeliveryPoints возвращает пункты выдачи. API отвечает либо массивом,
// либо объектом с полем deliverypoints.
func (c *Client) DeliveryPoints(ctx context.Context, q DeliveryPointsQuery) ([]DeliveryPoint, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/deliverypoints", q.values(), nil, &raw, true); err != nil {
		return nil, err
	}
	return decodeDeliveryPoints(raw)
}

func decodeDeliveryPoints(raw json.RawMessage) ([]DeliveryPoint, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []DeliveryPoint{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var points []DeliveryPoint
		if err := json.Unmarshal(raw, &points); err != nil {
			return nil, &Error{Kind: KindTransient, Message: "decode delivery points", Err: err}
		}
		return points, nil
	}

	var wrapped struct {
		DeliveryPoints []DeliveryPoint `json:"deliverypoints"`
		DeliveryPoint  json.RawMessage `json:"deliverypoint"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &Error{Kind: KindTransient, Message: "decode delivery points", Err: err}
	}
	if wrapped.DeliveryPoints != nil {
		return wrapped.DeliveryPoints, nil
	}
	if len(wrapped.DeliveryPoint) > 0 {
		var single DeliveryPoint
		if err := json.Unmarshal(wrapped.DeliveryPoint, &single); err == nil {
			return []DeliveryPoint{single}, nil
		}
		var many []DeliveryPoint
		if err := json.Unmarshal(wrapped.DeliveryPoint, &many); err == nil {
			return many, nil
		}
	}

	return nil, &Error{Kind: KindTransient, Message: "unexpected delivery points format"}
}

// resolveLocation подставляет код города СДЭК по названию. При неудаче
// локация остаётся с названием города.
func (c *Client) resolveLocation(ctx context.Context, loc *Location) {
	if loc.Code != 0 || loc.City == "" {
		return
	}

	cities, err := c.SuggestCities(ctx, loc.City, 1)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Sugar().Warnw("cdek city lookup failed, using city name", "city", loc.City, "error", err)
		return
	}
	if len(cities) == 0 || cities[0].Code == 0 {
		return
	}

	loc.Code = cities[0].Code
	if loc.Address == "" {
		if name := cities[0].Name(); name != "" {
			loc.Address = name
		} else {
			loc.Address = loc.City
		}
	}
}

func setInt(v url.Values, key string, n int) {
	if n != 0 {
		v.Set(key, strconv.Itoa(n))
	}
}

func setString(v url.Values, key, s string) {
	if s != "" {
		v.Set(key, s)
	}
}

func setBool(v url.Values, key string, b *bool) {
	if b != nil {
		v.Set(key, strconv.FormatBool(*b))
	}
}
