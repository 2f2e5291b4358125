package cart

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Expiry is how long an untouched cart is kept.
const Expiry = 30 * 24 * time.Hour

// Cart holds distinct products. There are no quantities: a template is bought
// once.
type Cart struct {
	ID        string    `json:"id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Item struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"priceRub"`
}

type ItemNew struct {
	SKU string `json:"sku" validate:"required,sku"`
}

type CheckoutNew struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// Add appends it unless an item with the same sku is present. It reports
// whether the cart changed.
func (c *Cart) Add(it Item) bool {
	for _, existing := range c.Items {
		if existing.SKU == it.SKU {
			return false
		}
	}
	c.Items = append(c.Items, it)
	return true
}

// Remove drops the item with id. Unknown ids are ignored.
func (c *Cart) Remove(id string) {
	for i, it := range c.Items {
		if it.ID == id {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

func (c *Cart) Clear() {
	c.Items = []Item{}
}

func (c Cart) TotalItems() int {
	return len(c.Items)
}

func (c Cart) TotalPrice() decimal.Decimal {
	var tot decimal.Decimal
	for _, it := range c.Items {
		tot = tot.Add(it.Price)
	}
	return tot
}

func (c Cart) SKUs() []string {
	skus := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		skus = append(skus, it.SKU)
	}
	return skus
}

// fromItemList upgrades the first stored form, a bare list of items that
// still carried quantities, to a cart object. Repeated skus collapse into
// one item.
func fromItemList(data json.RawMessage) (json.RawMessage, error) {
	var old []struct {
		ID          string          `json:"id"`
		SKU         string          `json:"sku"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price_rub"`
		Quantity    int             `json:"quantity"`
	}
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("decoding item list: %w", err)
	}

	c := Cart{Items: []Item{}}
	for _, o := range old {
		c.Add(Item{ID: o.ID, SKU: o.SKU, Title: o.Title, Description: o.Description, Price: o.Price})
	}
	return json.Marshal(c)
}
