package payment

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/core/notify"
	"github.com/otbox/storefront/yookassa"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const paymentID = "2d9b1e4c-000f-5000-9000-1b2c3d4e5f60"

type fakeGateway struct {
	payments map[string]yookassa.Payment
	err      error

	requests []yookassa.PaymentRequest
	keys     []string
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req yookassa.PaymentRequest, key string) (yookassa.Payment, error) {
	if g.err != nil {
		return yookassa.Payment{}, g.err
	}
	g.requests = append(g.requests, req)
	g.keys = append(g.keys, key)

	return yookassa.Payment{
		ID:           paymentID,
		Status:       yookassa.Pending,
		Amount:       req.Amount,
		Confirmation: &yookassa.Confirmation{Type: "redirect", ConfirmationURL: "https://yoomoney.ru/checkout/payments/v2/contract?orderId=" + paymentID},
		Metadata:     req.Metadata,
	}, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (yookassa.Payment, error) {
	if g.err != nil {
		return yookassa.Payment{}, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return yookassa.Payment{}, yookassa.ErrNotFound
	}
	return p, nil
}

type fakeSigner struct {
	fail map[string]bool
}

func (s *fakeSigner) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if s.fail[path] {
		return "", errors.New("access denied")
	}
	return "https://files.example.com/" + path + "?Expires=7200&Signature=sig", nil
}

type sentDownloads struct {
	to    string
	links []notify.Link
}

type fakeNotifier struct {
	downloads []sentDownloads
	alerts    []string
	alertErrs [][]string
	confirmed []string
}

func (n *fakeNotifier) Downloads(ctx context.Context, to, paymentID string, amount decimal.Decimal, links []notify.Link) error {
	n.downloads = append(n.downloads, sentDownloads{to: to, links: links})
	return nil
}

func (n *fakeNotifier) AdminAlert(ctx context.Context, title string, fields []notify.Field, errs []string) error {
	n.alerts = append(n.alerts, title)
	n.alertErrs = append(n.alertErrs, errs)
	return nil
}

func (n *fakeNotifier) OrderConfirmation(ctx context.Context, to string, lines []notify.Line, paymentURL string) error {
	n.confirmed = append(n.confirmed, to)
	return nil
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func discard() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var productColumns = []string{
	"product_id", "sku", "title", "price_rub", "old_price_rub", "description",
	"features", "badge", "file_path", "is_active", "created_at", "updated_at",
}

type catalogRow struct {
	sku    string
	title  string
	price  string
	active bool
}

var (
	office = catalogRow{"office-package", "Комплект для офиса", "3500.00", true}
	salon  = catalogRow{"salon-package", "Комплект для салона", "3900.00", true}
)

func productRows(rs ...catalogRow) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows(productColumns)
	for _, r := range rs {
		dir, _, _ := strings.Cut(r.sku, "-")
		rows.AddRow("id-"+r.sku, r.sku, r.title, r.price, nil, "", "{}", nil, dir+"/"+r.sku+".zip", r.active, now, now)
	}
	return rows
}
