package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/database"
)

var ErrNotFound = errors.New("order not found")

const columns = `order_id, email, product_id, sku, payment_id, payment_status, payment_amount, download_url, created_at, updated_at, sent_at`

func Create(ctx context.Context, db sqlx.ExtContext, o Order) error {
	q := `
	INSERT INTO orders (` + columns + `)
	VALUES (:order_id, :email, :product_id, :sku, :payment_id, :payment_status, :payment_amount, :download_url, :created_at, :updated_at, :sent_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, o); err != nil {
		return fmt.Errorf("inserting order for payment[%s] product[%s]: %w", o.PaymentID, o.SKU, database.WrapError(err))
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Order, error) {
	q := `SELECT ` + columns + ` FROM orders WHERE order_id = $1`

	var o Order
	if err := sqlx.GetContext(ctx, db, &o, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order[%s]: %w", id, err)
	}
	return o, nil
}

// HasSucceeded reports whether a payment has already been fulfilled.
func HasSucceeded(ctx context.Context, db sqlx.QueryerContext, paymentID string) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM orders WHERE payment_id = $1 AND payment_status = 'succeeded')`

	var ok bool
	if err := sqlx.GetContext(ctx, db, &ok, q, paymentID); err != nil {
		return false, fmt.Errorf("checking payment[%s]: %w", paymentID, err)
	}
	return ok, nil
}

// CancelPending moves the pending rows of a payment to canceled and returns how
// many changed. Only rows from the earlier checkout flow are ever pending, so
// for current payments it returns 0.
func CancelPending(ctx context.Context, db sqlx.ExecerContext, paymentID string, now time.Time) (int64, error) {
	q := `
	UPDATE orders SET payment_status = 'canceled', updated_at = $2
	WHERE payment_id = $1 AND payment_status = 'pending'`

	res, err := db.ExecContext(ctx, q, paymentID, now)
	if err != nil {
		return 0, fmt.Errorf("canceling orders of payment[%s]: %w", paymentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting canceled orders of payment[%s]: %w", paymentID, err)
	}
	return n, nil
}

// MarkPaymentSent stamps sent_at on the fulfilled rows of a payment.
func MarkPaymentSent(ctx context.Context, db sqlx.ExecerContext, paymentID string, now time.Time) error {
	q := `
	UPDATE orders SET sent_at = $2, updated_at = $2
	WHERE payment_id = $1 AND payment_status = 'succeeded'`

	if _, err := db.ExecContext(ctx, q, paymentID, now); err != nil {
		return fmt.Errorf("marking payment[%s] sent: %w", paymentID, err)
	}
	return nil
}

func MarkSent(ctx context.Context, db sqlx.ExecerContext, id string, now time.Time) error {
	q := `UPDATE orders SET sent_at = $2, updated_at = $2 WHERE order_id = $1`

	if _, err := db.ExecContext(ctx, q, id, now); err != nil {
		return fmt.Errorf("marking order[%s] sent: %w", id, err)
	}
	return nil
}

// ListDownloads returns the links of a fulfilled payment. Rows whose link could
// not be signed are left out.
func ListDownloads(ctx context.Context, db sqlx.QueryerContext, paymentID string) ([]Download, error) {
	q := `
	SELECT o.download_url, p.title
	FROM orders o
	JOIN products p ON p.product_id = o.product_id
	WHERE o.payment_id = $1 AND o.payment_status = 'succeeded' AND o.download_url IS NOT NULL
	ORDER BY o.created_at, o.sku`

	ds := []Download{}
	if err := sqlx.SelectContext(ctx, db, &ds, q, paymentID); err != nil {
		return nil, fmt.Errorf("selecting downloads of payment[%s]: %w", paymentID, err)
	}
	return ds, nil
}

// List returns the newest orders first.
func List(ctx context.Context, db sqlx.QueryerContext, limit int) ([]Order, error) {
	q := `SELECT ` + columns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

	ords := []Order{}
	if err := sqlx.SelectContext(ctx, db, &ords, q, limit); err != nil {
		return nil, fmt.Errorf("selecting orders: %w", err)
	}
	return ords, nil
}

func FetchStats(ctx context.Context, db sqlx.QueryerContext) (Stats, error) {
	q := `
	SELECT
		COUNT(*) FILTER (WHERE payment_status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE payment_status = 'succeeded') AS succeeded,
		COUNT(*) FILTER (WHERE payment_status = 'canceled') AS canceled,
		COALESCE(SUM(payment_amount) FILTER (WHERE payment_status = 'succeeded'), 0) AS revenue
	FROM orders`

	var s Stats
	if err := sqlx.GetContext(ctx, db, &s, q); err != nil {
		return Stats{}, fmt.Errorf("selecting order stats: %w", err)
	}
	return s, nil
}

// ListDue returns pending orders created before cutoff that have not been
// reminded yet.
func ListDue(ctx context.Context, db sqlx.QueryerContext, cutoff time.Time) ([]Due, error) {
	q := `
	SELECT o.order_id, o.email, o.product_id, o.sku, o.payment_id, o.payment_status, o.payment_amount,
		o.download_url, o.created_at, o.updated_at, o.sent_at, p.title
	FROM orders o
	JOIN products p ON p.product_id = o.product_id
	WHERE o.payment_status = 'pending' AND o.sent_at IS NULL AND o.created_at < $1
	ORDER BY o.created_at`

	ds := []Due{}
	if err := sqlx.SelectContext(ctx, db, &ds, q, cutoff); err != nil {
		return nil, fmt.Errorf("selecting orders due a reminder: %w", err)
	}
	return ds, nil
}
