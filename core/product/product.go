package product

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string              `json:"id" db:"product_id"`
	SKU         string              `json:"sku" db:"sku"`
	Title       string              `json:"title" db:"title"`
	Price       decimal.Decimal     `json:"priceRub" db:"price_rub"`
	OldPrice    decimal.NullDecimal `json:"oldPriceRub" db:"old_price_rub"`
	Description string              `json:"description" db:"description"`
	Features    pq.StringArray      `json:"features" db:"features"`
	Badge       *string             `json:"badge" db:"badge"`
	FilePath    string              `json:"-" db:"file_path"`
	Active      bool                `json:"-" db:"is_active"`
	CreatedAt   time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time           `json:"updatedAt" db:"updated_at"`
}

// Total sums the prices of ps.
func Total(ps []Product) decimal.Decimal {
	var tot decimal.Decimal
	for _, p := range ps {
		tot = tot.Add(p.Price)
	}
	return tot
}

// Titles lists product titles in order.
func Titles(ps []Product) []string {
	ts := make([]string, 0, len(ps))
	for _, p := range ps {
		ts = append(ts, p.Title)
	}
	return ts
}
