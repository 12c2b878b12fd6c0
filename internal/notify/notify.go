// Package notify отправляет письма об оплаченных заказах покупателю и магазину.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/ruesvertes/internal/model"
)

// Config содержит параметры SMTP.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// ShopEmail получает копию каждого оплаченного заказа.
	ShopEmail string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer отправляет уведомления по SMTP. Без SMTP_HOST письма только логируются.
type Mailer struct {
	cfg    Config
	send   sendFunc
	logger *zap.Logger
}

// NewMailer создаёт отправителя уведомлений.
func NewMailer(cfg Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}

	return &Mailer{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger,
	}
}

// Enabled сообщает, настроена ли отправка писем.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// OrderPaid отправляет подтверждение оплаты покупателю и копию магазину одним письмом.
func (m *Mailer) OrderPaid(ctx context.Context, order *model.Order) error {
	log := m.logger.With(zap.String("orderID", order.ID))

	var recipients []string
	if order.Email != "" {
		recipients = append(recipients, order.Email)
	}
	if m.cfg.ShopEmail != "" {
		recipients = append(recipients, m.cfg.ShopEmail)
	}
	if len(recipients) == 0 {
		log.Info("order paid, no notification recipients")
		return nil
	}

	body, err := renderOrderPaid(order)
	if err != nil {
		return fmt.Errorf("render order email: %w", err)
	}

	if !m.Enabled() {
		log.Info("smtp not configured, notification logged only",
			zap.Strings("to", recipients),
			zap.Stringer("total", order.Total),
		)
		return nil
	}

	subject := fmt.Sprintf("Заказ RUES VERTES №%s оплачен", order.ID)
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Одна SMTP-транзакция на всех получателей: повтор задачи после сбоя не
	// приводит к повторному письму покупателю, если магазину отправить не удалось.
	// Адрес магазина передаётся только в конверте и не виден покупателю.
	msg := buildMessage(m.cfg.From, recipients[0], subject, body)
	if err := m.send(addr, auth, m.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", strings.Join(recipients, ", "), err)
	}
	log.Info("order notification sent", zap.Strings("to", recipients))
	return nil
}

func buildMessage(from, to, subject string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}

var (
	reWomens  = regexp.MustCompile(`(?i)женская`)
	reTShirt  = regexp.MustCompile(`(?i)футболка`)
	reSheert  = regexp.MustCompile(`(?i)sheert`)
	reSpacing = regexp.MustCompile(`\s+`)
)

// SanitizeProductName убирает из названия товара служебные слова каталога.
func SanitizeProductName(name string) string {
	name = reWomens.ReplaceAllString(name, "")
	name = reTShirt.ReplaceAllString(name, "")
	name = reSheert.ReplaceAllString(name, "shirt")
	name = reSpacing.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
