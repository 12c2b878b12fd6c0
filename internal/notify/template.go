package notify

import (
	"bytes"
	"html/template"

	"github.com/mmeshcher/ruesvertes/internal/model"
)

var orderPaidTmpl = template.Must(template.New("order_paid").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">Спасибо за заказ!</h1>
	<p>Заказ <b>№{{.ID}}</b> оплачен.</p>
	<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr>
				<th style="text-align: left; padding: 8px;">Товар</th>
				<th style="text-align: left; padding: 8px;">Артикул</th>
				<th style="text-align: center; padding: 8px;">Размер</th>
				<th style="text-align: center; padding: 8px;">Кол-во</th>
				<th style="text-align: right; padding: 8px;">Цена</th>
			</tr>
		</thead>
		<tbody>
		{{- range .Items}}
			<tr>
				<td style="padding: 8px; border-top: 1px solid #eee;">{{.Name}}</td>
				<td style="padding: 8px; border-top: 1px solid #eee;">{{.Code}}</td>
				<td style="padding: 8px; border-top: 1px solid #eee; text-align: center;">{{.Size}}</td>
				<td style="padding: 8px; border-top: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
				<td style="padding: 8px; border-top: 1px solid #eee; text-align: right;">{{.Price}} ₽</td>
			</tr>
		{{- end}}
		</tbody>
	</table>
	{{- if .Discount}}
	<p>Скидка подписчика: {{.Discount}} ₽</p>
	{{- end}}
	<p>Доставка: {{.DeliveryCost}} ₽</p>
	<p style="font-size: 18px;"><b>Итого: {{.Total}} ₽</b></p>
	<p>Адрес доставки: {{.Address}}<br>Телефон: {{.Phone}}</p>
	<p style="font-size: 12px; color: #888;">RUES VERTES</p>
</body>
</html>
`))

type emailItem struct {
	Name     string
	Code     string
	Size     string
	Quantity int
	Price    string
}

type emailData struct {
	ID           string
	Items        []emailItem
	Discount     string
	DeliveryCost string
	Total        string
	Address      string
	Phone        string
}

func renderOrderPaid(order *model.Order) ([]byte, error) {
	data := emailData{
		ID:           order.ID,
		DeliveryCost: order.DeliveryCost.String(),
		Total:        order.Total.String(),
		Address:      order.Address,
		Phone:        order.Phone,
	}
	if order.Discount > 0 {
		data.Discount = order.Discount.String()
	}
	for _, it := range order.Items {
		data.Items = append(data.Items, emailItem{
			Name:     SanitizeProductName(it.ProductName),
			Code:     it.ProductCode,
			Size:     it.Size,
			Quantity: it.Quantity,
			Price:    it.Price.String(),
		})
	}

	var buf bytes.Buffer
	if err := orderPaidTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
