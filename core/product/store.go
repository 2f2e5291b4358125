package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrNotFound = errors.New("product not found")

const columns = `product_id, sku, title, price_rub, old_price_rub, description, features, badge, file_path, is_active, created_at, updated_at`

func ListActive(ctx context.Context, db sqlx.QueryerContext) ([]Product, error) {
	q := `SELECT ` + columns + ` FROM products WHERE is_active ORDER BY price_rub, sku`

	ps := []Product{}
	if err := sqlx.SelectContext(ctx, db, &ps, q); err != nil {
		return nil, fmt.Errorf("selecting active products: %w", err)
	}
	return ps, nil
}

func FetchActiveBySKU(ctx context.Context, db sqlx.QueryerContext, sku string) (Product, error) {
	q := `SELECT ` + columns + ` FROM products WHERE sku = $1 AND is_active`

	var p Product
	if err := sqlx.GetContext(ctx, db, &p, q, sku); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("selecting product[%s]: %w", sku, err)
	}
	return p, nil
}

// FetchActiveBySKUs returns the active products for skus in the order of skus.
// It fails with ErrNotFound when any of them is missing or inactive.
func FetchActiveBySKUs(ctx context.Context, db sqlx.QueryerContext, skus []string) ([]Product, error) {
	q := `SELECT ` + columns + ` FROM products WHERE sku = ANY($1) AND is_active`

	var found []Product
	if err := sqlx.SelectContext(ctx, db, &found, q, pq.Array(skus)); err != nil {
		return nil, fmt.Errorf("selecting products %v: %w", skus, err)
	}

	ps, missing := inOrder(skus, found)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, missing)
	}
	return ps, nil
}

// FetchBySKUs ignores is_active: a product withdrawn after payment still has
// to be delivered. Unknown skus are skipped.
func FetchBySKUs(ctx context.Context, db sqlx.QueryerContext, skus []string) ([]Product, error) {
	q := `SELECT ` + columns + ` FROM products WHERE sku = ANY($1)`

	var found []Product
	if err := sqlx.SelectContext(ctx, db, &found, q, pq.Array(skus)); err != nil {
		return nil, fmt.Errorf("selecting products %v: %w", skus, err)
	}

	ps, _ := inOrder(skus, found)
	return ps, nil
}

func inOrder(skus []string, found []Product) ([]Product, []string) {
	bySKU := make(map[string]Product, len(found))
	for _, p := range found {
		bySKU[p.SKU] = p
	}

	ps := make([]Product, 0, len(skus))
	var missing []string
	for _, s := range skus {
		p, ok := bySKU[s]
		if !ok {
			missing = append(missing, s)
			continue
		}
		ps = append(ps, p)
	}
	return ps, missing
}
