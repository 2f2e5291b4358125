package cart

import (
	"context"
	"errors"

	"github.com/otbox/storefront/state"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	s *state.Store[Cart]
}

func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{s: state.New[Cart](rdb, "cart", Expiry, fromItemList)}
}

// Load returns an empty cart for an id never saved or expired.
func (st *Store) Load(ctx context.Context, id string) (Cart, error) {
	c, err := st.s.Load(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return Cart{ID: id, Items: []Item{}}, nil
	}
	if err != nil {
		return Cart{}, err
	}

	normalize(&c, id)
	return c, nil
}

func (st *Store) Save(ctx context.Context, c Cart) error {
	return st.s.Save(ctx, c.ID, c)
}

// Update applies fn to the stored cart without losing a concurrent change.
// A missing cart starts empty. fn may run more than once.
func (st *Store) Update(ctx context.Context, id string, fn func(c *Cart) error) (Cart, error) {
	return st.s.Update(ctx, id, func(c *Cart, _ bool) error {
		normalize(c, id)
		return fn(c)
	})
}

func (st *Store) Delete(ctx context.Context, id string) error {
	return st.s.Delete(ctx, id)
}

func normalize(c *Cart, id string) {
	c.ID = id
	if c.Items == nil {
		c.Items = []Item{}
	}
}
