// Package notify renders and sends the storefront's transactional emails.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/otbox/storefront/email"
	"github.com/otbox/storefront/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Mailer interface {
	Send(ctx context.Context, msg email.Message) (string, error)
}

type Config struct {
	From    string
	Admin   string
	SiteURL string
	LinkTTL time.Duration
}

type Notifier struct {
	mail Mailer
	cfg  Config
	log  logrus.FieldLogger
}

func New(mail Mailer, cfg Config, log logrus.FieldLogger) *Notifier {
	return &Notifier{mail: mail, cfg: cfg, log: log}
}

// Line is one purchased product as shown in an email.
type Line struct {
	Title string
	Price decimal.Decimal
}

type Link struct {
	Name string
	URL  string
}

// Field is a labelled row of an admin alert.
type Field struct {
	Name  string
	Value string
}

// OrderConfirmation tells the buyer the order waits for payment.
func (n *Notifier) OrderConfirmation(ctx context.Context, to string, lines []Line, paymentURL string) error {
	type item struct{ Title, Price string }

	var total decimal.Decimal
	items := make([]item, 0, len(lines))
	for _, l := range lines {
		total = total.Add(l.Price)
		items = append(items, item{Title: l.Title, Price: Rub(l.Price)})
	}

	data := struct {
		Items      []item
		Amount     string
		PaymentURL string
	}{items, Rub(total), paymentURL}

	return n.send(ctx, "order_confirmation", email.Message{
		To:      []string{to},
		Subject: "OT-Box: заказ ожидает оплаты",
	}, data)
}

// Downloads sends one button per link. Callers leave out products without a
// link.
func (n *Notifier) Downloads(ctx context.Context, to, paymentID string, amount decimal.Decimal, links []Link) error {
	if len(links) == 0 {
		return fmt.Errorf("no download links for payment[%s]", paymentID)
	}

	data := struct {
		Links     []Link
		Amount    string
		PaymentID string
		TTL       string
	}{links, Rub(amount), paymentID, duration(n.cfg.LinkTTL)}

	return n.send(ctx, "downloads", email.Message{
		To:      []string{to},
		Subject: "OT-Box: ваши документы готовы к скачиванию",
	}, data)
}

func (n *Notifier) PaymentReminder(ctx context.Context, to, title string, amount decimal.Decimal) error {
	data := struct {
		Title   string
		Amount  string
		SiteURL string
	}{title, Rub(amount), n.cfg.SiteURL}

	return n.send(ctx, "payment_reminder", email.Message{
		To:      []string{to},
		Subject: "OT-Box: вы не завершили оплату",
	}, data)
}

func (n *Notifier) AdminAlert(ctx context.Context, title string, fields []Field, errs []string) error {
	data := struct {
		Title  string
		Fields []Field
		Errors []string
	}{title, fields, errs}

	return n.send(ctx, "admin_alert", email.Message{
		To:      []string{n.cfg.Admin},
		Subject: "OT-Box: " + title,
	}, data)
}

// ContactMessage relays a visitor's message to the shop. Replies go to the
// visitor.
func (n *Notifier) ContactMessage(ctx context.Context, from, message string) error {
	data := struct {
		From    string
		Message template.HTML
	}{from, Paragraphs(message)}

	return n.send(ctx, "contact", email.Message{
		To:      []string{n.cfg.Admin},
		ReplyTo: from,
		Subject: "OT-Box: сообщение с сайта от " + from,
	}, data)
}

// OrderMessage sends free text written by an operator to a buyer.
func (n *Notifier) OrderMessage(ctx context.Context, to, subject, message string) error {
	data := struct{ Message template.HTML }{Paragraphs(message)}

	return n.send(ctx, "message", email.Message{
		To:      []string{to},
		ReplyTo: n.cfg.Admin,
		Subject: subject,
	}, data)
}

func (n *Notifier) Test(ctx context.Context, to string) error {
	data := struct{ SentAt string }{time.Now().UTC().Format(time.RFC3339)}

	return n.send(ctx, "test", email.Message{
		To:      []string{to},
		Subject: "OT-Box: тестовое письмо",
	}, data)
}

func (n *Notifier) send(ctx context.Context, name string, msg email.Message, data any) error {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, name+".html", data)
	if err == nil {
		msg.From = n.cfg.From
		msg.HTML = buf.String()
		_, err = n.mail.Send(ctx, msg)
	}
	metrics.Emails.WithLabelValues(name, metrics.Outcome(err)).Inc()

	log := n.log.WithFields(logrus.Fields{
		"template": name,
		"to":       MaskEmail(strings.Join(msg.To, ",")),
	})
	if err != nil {
		log.WithError(err).Warn("email not sent")
		return fmt.Errorf("sending %s email: %w", name, err)
	}
	log.Info("email sent")
	return nil
}

// Paragraphs escapes s and turns its line breaks into <br>.
func Paragraphs(s string) template.HTML {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	esc := template.HTMLEscapeString(s)
	return template.HTML(strings.ReplaceAll(esc, "\n", "<br>"))
}

// Rub formats an amount the way the storefront prints prices.
func Rub(v decimal.Decimal) string {
	return v.StringFixed(2) + " ₽"
}

// MaskEmail keeps the first letter of the local part and the domain.
func MaskEmail(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		return "***"
	}
	r := []rune(local)
	return string(r[0]) + "***@" + domain
}

func duration(d time.Duration) string {
	switch {
	case d <= 0:
		return "ограниченное время"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d ч", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d мин", int(d/time.Minute))
	}
}
