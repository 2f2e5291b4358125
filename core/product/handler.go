package product

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ps, err := ListActive(ctx, db)
		if err != nil {
			return fmt.Errorf("listing products: %w", err)
		}
		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		sku := web.Param(r, "sku")

		p, err := FetchActiveBySKU(ctx, db, sku)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(fmt.Errorf("product[%s] not found", sku))
			}
			return fmt.Errorf("fetching product[%s]: %w", sku, err)
		}
		return web.Respond(ctx, w, p, http.StatusOK)
	}
}
