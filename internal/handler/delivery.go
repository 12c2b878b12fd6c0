package handler

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/cdek"
)

const (
	citySuggestSize  = 20
	cityResultsLimit = 10
	defaultWeight    = 1000
)

// DeliveryGet проксирует справочные запросы витрины и виджета СДЭК:
// action=cities|regions|tariffs|offices.
func (h *Handler) DeliveryGet(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "cities":
		h.deliveryCities(w, r)
	case "regions":
		h.deliveryRegions(w, r)
	case "tariffs":
		h.deliveryTariffs(w, r)
	case "offices":
		h.deliveryOffices(w, r)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "Неизвестное действие "+strconv.Quote(action))
	}
}

// DeliveryPost обрабатывает action=pickup-points|calculate.
func (h *Handler) DeliveryPost(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "pickup-points":
		h.deliveryPickupPoints(w, r)
	case "calculate", "calculator":
		h.deliveryCalculate(w, r)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "Неизвестное действие "+strconv.Quote(action))
	}
}

// carrierFailed пишет ответ на ошибку СДЭК. Временные ошибки превращаются в пустой список
// под ключом key, чтобы витрина могла продолжить оформление. Отказ в авторизации
// возвращается ошибкой: пустой список скрыл бы неверные учётные данные.
func (h *Handler) carrierFailed(w http.ResponseWriter, err error, key, action string) {
	switch {
	case cdek.IsKind(err, cdek.KindConfig):
		writeError(w, http.StatusInternalServerError, "carrier_config_missing", "Доставка СДЭК не настроена")
		return
	case cdek.IsKind(err, cdek.KindRequest):
		h.logger.Info("carrier rejected request", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", "СДЭК отклонил запрос")
		return
	case cdek.IsKind(err, cdek.KindAuth):
		h.logger.Error("carrier authorization failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusBadGateway, "carrier_auth_error", "Ошибка авторизации в СДЭК")
		return
	}

	h.logger.Warn("carrier request failed, returning empty list", zap.String("action", action), zap.Error(err))
	if key == "" {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]any{key: {}})
}

func (h *Handler) deliveryCities(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Параметр q обязателен для поиска городов")
		return
	}

	cities, err := h.delivery.SuggestCities(r.Context(), query, citySuggestSize)
	if err != nil {
		h.carrierFailed(w, err, "cities", "cities")
		return
	}

	needle := strings.ToLower(query)
	filtered := make([]cdek.City, 0, cityResultsLimit)
	for _, c := range cities {
		if strings.Contains(strings.ToLower(c.Name()), needle) {
			filtered = append(filtered, c)
			if len(filtered) == cityResultsLimit {
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string][]cdek.City{"cities": filtered})
}

func (h *Handler) deliveryRegions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := cdek.RegionsQuery{
		RegionCode: atoi(q.Get("region_code")),
		Page:       atoi(q.Get("page")),
		Size:       atoi(q.Get("size")),
	}
	if cc := q.Get("country_codes"); cc != "" {
		query.CountryCodes = strings.Split(cc, ",")
	}

	regions, err := h.delivery.Regions(r.Context(), query)
	if err != nil {
		h.carrierFailed(w, err, "regions", "regions")
		return
	}
	if regions == nil {
		regions = []cdek.Region{}
	}

	writeJSON(w, http.StatusOK, map[string][]cdek.Region{"regions": regions})
}

func (h *Handler) deliveryTariffs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	fromCity := q.Get("fromCity")
	if fromCity == "" {
		fromCity = h.opts.SenderCity
	}
	toCity := q.Get("toCity")
	toCityCode := atoi(q.Get("toCityCode"))
	if toCity == "" && toCityCode == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Город получателя обязателен")
		return
	}
	weight := atoi(q.Get("weight"))
	if weight <= 0 {
		weight = defaultWeight
	}

	tariffs, err := h.delivery.TariffsForCity(r.Context(), fromCity, toCity, toCityCode, weight)
	if err != nil {
		h.carrierFailed(w, err, "tariffs", "tariffs")
		return
	}
	if tariffs == nil {
		tariffs = []cdek.Tariff{}
	}

	writeJSON(w, http.StatusOK, map[string][]cdek.Tariff{"tariffs": tariffs})
}

// deliveryOffices повторяет формат /deliverypoints СДЭК: виджет ждёт массив.
func (h *Handler) deliveryOffices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := cdek.DeliveryPointsQuery{
		Type:           q.Get("type"),
		CityCode:       atoi(q.Get("city_code")),
		RegionCode:     atoi(q.Get("region_code")),
		PostalCode:     q.Get("postal_code"),
		Code:           q.Get("code"),
		Lang:           q.Get("lang"),
		IsHandout:      boolParam(q.Get("is_handout")),
		HaveCashless:   boolParam(q.Get("have_cashless")),
		HaveCash:       boolParam(q.Get("have_cash")),
		AllowedCod:     boolParam(q.Get("allowed_cod")),
		IsDressingRoom: boolParam(q.Get("is_dressing_room")),
	}
	// Виджет передаёт код города в параметре city.
	if query.CityCode == 0 {
		query.CityCode = atoi(q.Get("city"))
	}
	if country := q.Get("country"); country != "" {
		query.CountryCodes = []string{country}
	} else if cc := q.Get("country_codes"); cc != "" {
		query.CountryCodes = strings.Split(cc, ",")
	}

	points, err := h.delivery.DeliveryPoints(r.Context(), query)
	if err != nil {
		h.carrierFailed(w, err, "", "offices")
		return
	}
	if points == nil {
		points = []cdek.DeliveryPoint{}
	}

	writeJSON(w, http.StatusOK, points)
}

type pickupPointsRequest struct {
	City       string `json:"city"        validate:"max=255"`
	CityCode   int    `json:"city_code"   validate:"gte=0"`
	Type       string `json:"type"        validate:"omitempty,oneof=PVZ POSTAMAT ALL"`
	PostalCode string `json:"postal_code" validate:"max=16"`
	Size       int    `json:"size"        validate:"gte=0,lte=5000"`

	IsHandout      *bool `json:"is_handout"`
	HaveCashless   *bool `json:"have_cashless"`
	HaveCash       *bool `json:"have_cash"`
	AllowedCod     *bool `json:"allowed_cod"`
	IsDressingRoom *bool `json:"is_dressing_room"`
}

func (h *Handler) deliveryPickupPoints(w http.ResponseWriter, r *http.Request) {
	var req pickupPointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.City == "" && req.CityCode == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Город обязателен")
		return
	}

	points, err := h.delivery.DeliveryPoints(r.Context(), cdek.DeliveryPointsQuery{
		Type:           req.Type,
		CityCode:       req.CityCode,
		City:           req.City,
		PostalCode:     req.PostalCode,
		Size:           req.Size,
		IsHandout:      req.IsHandout,
		HaveCashless:   req.HaveCashless,
		HaveCash:       req.HaveCash,
		AllowedCod:     req.AllowedCod,
		IsDressingRoom: req.IsDressingRoom,
	})
	if err != nil {
		h.carrierFailed(w, err, "pickupPoints", "pickup-points")
		return
	}
	if points == nil {
		points = []cdek.DeliveryPoint{}
	}

	writeJSON(w, http.StatusOK, map[string][]cdek.DeliveryPoint{"pickupPoints": points})
}

func (h *Handler) deliveryCalculate(w http.ResponseWriter, r *http.Request) {
	var req cdek.TariffRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Packages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Не указаны посылки")
		return
	}

	tariffs, err := h.delivery.CalculateTariffs(r.Context(), req)
	if err != nil {
		h.carrierFailed(w, err, "tariff_codes", "calculate")
		return
	}
	if tariffs == nil {
		tariffs = []cdek.Tariff{}
	}

	writeJSON(w, http.StatusOK, map[string][]cdek.Tariff{"tariff_codes": tariffs})
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func boolParam(s string) *bool {
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &b
}
