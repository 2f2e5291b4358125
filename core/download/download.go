// Package download resolves the links of a fulfilled payment for the
// thank-you page.
package download

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/core/order"
	"github.com/otbox/storefront/validate"
)

type Request struct {
	PaymentID string `json:"payment_id"`
}

// Result is the same shape whether the payment is unknown, unpaid or the id is
// malformed.
type Result struct {
	DownloadURL *string          `json:"download_url"`
	Downloads   []order.Download `json:"downloads"`
}

func Resolve(ctx context.Context, db sqlx.QueryerContext, paymentID string) (Result, error) {
	res := Result{Downloads: []order.Download{}}

	paymentID = strings.TrimSpace(paymentID)
	if !validate.PaymentID(paymentID) {
		return res, nil
	}

	ds, err := order.ListDownloads(ctx, db, paymentID)
	if err != nil {
		return Result{}, err
	}

	if len(ds) > 0 {
		res.DownloadURL = &ds[0].URL
		res.Downloads = ds
	}
	return res, nil
}

func HandleResolve(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req Request
		if err := web.DecodeLoose(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		res, err := Resolve(ctx, db, req.PaymentID)
		if err != nil {
			return fmt.Errorf("resolving downloads: %w", err)
		}
		return web.Respond(ctx, w, res, http.StatusOK)
	}
}
