package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/otbox/storefront/api/background"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/core/notify"
	"github.com/otbox/storefront/core/product"
)

type Confirmer interface {
	OrderConfirmation(ctx context.Context, to string, lines []notify.Line, paymentURL string) error
}

func HandleCreate(c *Creator, n Confirmer, bg *background.Background) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var pn PaymentNew
		if err := web.Decode(w, r, &pn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		created, err := c.Create(ctx, pn.Checkout())
		if err != nil {
			return CreateError(err)
		}

		Confirm(bg, n, pn.Checkout().Email, created)
		return web.Respond(ctx, w, created, http.StatusOK)
	}
}

// CreateError maps a Creator failure to its HTTP answer.
func CreateError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return weberr.BadRequest(err)
	case errors.Is(err, product.ErrNotFound):
		return weberr.NotFound(err)
	case errors.Is(err, ErrGateway):
		return weberr.BadGateway(err)
	default:
		return fmt.Errorf("creating payment: %w", err)
	}
}

// Confirm queues the "awaiting payment" email. Its failure only gets logged.
func Confirm(bg *background.Background, n Confirmer, to string, created Created) {
	lines := make([]notify.Line, 0, len(created.Products))
	for _, p := range created.Products {
		lines = append(lines, notify.Line{Title: p.Title, Price: p.Price})
	}

	bg.Go("order confirmation", func(ctx context.Context) error {
		return n.OrderConfirmation(ctx, to, lines, created.URL)
	})
}
