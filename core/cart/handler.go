package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/api/background"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/core/payment"
	"github.com/otbox/storefront/core/product"
	"github.com/otbox/storefront/validate"
	"github.com/shopspring/decimal"
)

type View struct {
	Cart
	Added      *bool           `json:"added,omitempty"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func view(c Cart) View {
	return View{Cart: c, TotalItems: c.TotalItems(), TotalPrice: c.TotalPrice()}
}

func cartID(r *http.Request) (string, error) {
	id := web.Param(r, "id")
	if err := validate.CheckID(id); err != nil {
		return "", weberr.BadRequest(err)
	}
	return id, nil
}

func load(ctx context.Context, st *Store, r *http.Request) (Cart, error) {
	id, err := cartID(r)
	if err != nil {
		return Cart{}, err
	}

	c, err := st.Load(ctx, id)
	if err != nil {
		return Cart{}, fmt.Errorf("loading cart[%s]: %w", id, err)
	}
	return c, nil
}

func HandleShow(st *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		c, err := load(ctx, st, r)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, view(c), http.StatusOK)
	}
}

// HandleCreateItem adds a product by sku. Title and price come from the
// catalog, never from the client.
func HandleCreateItem(db *sqlx.DB, st *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id, err := cartID(r)
		if err != nil {
			return err
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.BadRequest(err)
		}

		p, err := product.FetchActiveBySKU(ctx, db, in.SKU)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return weberr.NotFound(fmt.Errorf("product[%s] not found", in.SKU))
			}
			return fmt.Errorf("fetching product[%s]: %w", in.SKU, err)
		}

		var added bool
		c, err := st.Update(ctx, id, func(c *Cart) error {
			added = c.Add(Item{
				ID:          validate.GenerateID(),
				SKU:         p.SKU,
				Title:       p.Title,
				Description: p.Description,
				Price:       p.Price,
			})
			if added {
				c.UpdatedAt = time.Now().UTC()
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("adding to cart[%s]: %w", id, err)
		}

		status := http.StatusOK
		if added {
			status = http.StatusCreated
		}

		v := view(c)
		v.Added = &added
		return web.Respond(ctx, w, v, status)
	}
}

func HandleDeleteItem(st *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id, err := cartID(r)
		if err != nil {
			return err
		}

		c, err := st.Update(ctx, id, func(c *Cart) error {
			c.Remove(web.Param(r, "item_id"))
			c.UpdatedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			return fmt.Errorf("removing from cart[%s]: %w", id, err)
		}
		return web.Respond(ctx, w, view(c), http.StatusOK)
	}
}

func HandleDelete(st *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id, err := cartID(r)
		if err != nil {
			return err
		}

		if err := st.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting cart[%s]: %w", id, err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleCheckout starts a payment for the cart's products. The cart is kept
// until the buyer reaches the thank-you page.
func HandleCheckout(st *Store, c *payment.Creator, n payment.Confirmer, bg *background.Background) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		crt, err := load(ctx, st, r)
		if err != nil {
			return err
		}

		var in CheckoutNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.BadRequest(err)
		}

		if crt.TotalItems() == 0 {
			err := errors.New("no items to checkout")
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		created, err := c.Create(ctx, payment.Checkout{Email: in.Email, SKUs: crt.SKUs()})
		if err != nil {
			return payment.CreateError(err)
		}

		payment.Confirm(bg, n, in.Email, created)
		return web.Respond(ctx, w, created, http.StatusOK)
	}
}
