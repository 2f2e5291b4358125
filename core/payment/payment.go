package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/core/product"
	"github.com/otbox/storefront/metrics"
	"github.com/otbox/storefront/validate"
	"github.com/otbox/storefront/yookassa"
)

var (
	// ErrInvalid marks a checkout rejected before any lookup.
	ErrInvalid = errors.New("invalid checkout")

	// ErrGateway marks failures talking to the payment gateway.
	ErrGateway = errors.New("payment gateway failed")
)

// maxDescription is the gateway's limit for descriptions, in characters.
const maxDescription = 128

type Gateway interface {
	CreatePayment(ctx context.Context, req yookassa.PaymentRequest, idempotenceKey string) (yookassa.Payment, error)
	GetPayment(ctx context.Context, id string) (yookassa.Payment, error)
}

// Settings are the receipt and redirect parameters of every payment.
type Settings struct {
	ReturnURL      string
	VATCode        int
	PaymentMode    string
	PaymentSubject string
}

type PaymentNew struct {
	Email string   `json:"email"`
	SKU   string   `json:"sku"`
	SKUs  []string `json:"skus"`
}

// Checkout is a validated purchase request.
type Checkout struct {
	Email string   `validate:"required,email,max=255"`
	SKUs  []string `validate:"min=1,max=10,dive,sku"`
}

// Checkout merges the single and list forms into one sku list.
func (p PaymentNew) Checkout() Checkout {
	skus := make([]string, 0, len(p.SKUs)+1)
	if p.SKU != "" {
		skus = append(skus, p.SKU)
	}
	skus = append(skus, p.SKUs...)

	return Checkout{
		Email: strings.TrimSpace(p.Email),
		SKUs:  Normalize(skus),
	}
}

type Created struct {
	PaymentID string            `json:"payment_id"`
	URL       string            `json:"url"`
	Products  []product.Product `json:"-"`
}

// Creator registers hosted payments. Nothing is written locally; orders are
// only created once the webhook sees a verified success.
type Creator struct {
	db  *sqlx.DB
	gw  Gateway
	cfg Settings
}

func NewCreator(db *sqlx.DB, gw Gateway, cfg Settings) *Creator {
	return &Creator{db: db, gw: gw, cfg: cfg}
}

// Create fails with ErrInvalid for malformed input, product.ErrNotFound when a
// sku is unknown or inactive and ErrGateway when the gateway does not answer
// with a payment.
func (c *Creator) Create(ctx context.Context, co Checkout) (Created, error) {
	if err := validate.Check(co); err != nil {
		return Created{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	ps, err := product.FetchActiveBySKUs(ctx, c.db, co.SKUs)
	if err != nil {
		return Created{}, fmt.Errorf("resolving products: %w", err)
	}

	req := c.request(co.Email, ps)

	p, err := c.gw.CreatePayment(ctx, req, validate.GenerateID())
	if err != nil {
		return Created{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	url := p.ConfirmationURL()
	if p.ID == "" || url == "" {
		return Created{}, fmt.Errorf("%w: payment[%s] has no confirmation url", ErrGateway, p.ID)
	}

	metrics.PaymentsCreated.Inc()
	return Created{PaymentID: p.ID, URL: url, Products: ps}, nil
}

func (c *Creator) request(email string, ps []product.Product) yookassa.PaymentRequest {
	items := make([]yookassa.ReceiptItem, 0, len(ps))
	for _, p := range ps {
		items = append(items, yookassa.ReceiptItem{
			Description:    truncate(p.Title, maxDescription),
			Quantity:       "1.00",
			Amount:         yookassa.RUB(p.Price),
			VATCode:        c.cfg.VATCode,
			PaymentMode:    c.cfg.PaymentMode,
			PaymentSubject: c.cfg.PaymentSubject,
		})
	}

	return yookassa.PaymentRequest{
		Amount:  yookassa.RUB(product.Total(ps)),
		Capture: true,
		Confirmation: yookassa.Confirmation{
			Type:      "redirect",
			ReturnURL: c.cfg.ReturnURL,
		},
		Description: truncate("OT-Box: "+strings.Join(product.Titles(ps), ", "), maxDescription),
		Metadata:    Metadata{Email: email, SKUs: skus(ps)}.Encode(),
		Receipt: &yookassa.Receipt{
			Customer: yookassa.Customer{Email: email},
			Items:    items,
		},
	}
}

func skus(ps []product.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.SKU)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
