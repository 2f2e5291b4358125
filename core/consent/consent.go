// Package consent stores a visitor's cookie preferences.
package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/state"
	"github.com/otbox/storefront/validate"
	"github.com/redis/go-redis/v9"
)

// Expiry is how long a choice is honoured before the banner is shown again.
const Expiry = 30 * 24 * time.Hour

type Preferences struct {
	Necessary  bool      `json:"necessary"`
	Functional bool      `json:"functional"`
	Analytics  bool      `json:"analytics"`
	Timestamp  time.Time `json:"timestamp"`
}

type PreferencesNew struct {
	Functional bool `json:"functional"`
	Analytics  bool `json:"analytics"`
}

type Store = state.Store[Preferences]

func NewStore(rdb redis.UniversalClient) *Store {
	return state.New[Preferences](rdb, "consent", Expiry, fromEpochMillis)
}

// fromEpochMillis upgrades records whose timestamp was a JavaScript
// millisecond count.
func fromEpochMillis(data json.RawMessage) (json.RawMessage, error) {
	var old struct {
		Necessary  bool  `json:"necessary"`
		Functional bool  `json:"functional"`
		Analytics  bool  `json:"analytics"`
		Timestamp  int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}

	return json.Marshal(Preferences{
		Necessary:  old.Necessary,
		Functional: old.Functional,
		Analytics:  old.Analytics,
		Timestamp:  time.UnixMilli(old.Timestamp).UTC(),
	})
}

// Expired reports whether p was given more than Expiry before now.
func (p Preferences) Expired(now time.Time) bool {
	return now.Sub(p.Timestamp) > Expiry
}

func HandleShow(st *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		p, err := st.Load(ctx, id)
		if errors.Is(err, state.ErrNotFound) || (err == nil && p.Expired(time.Now())) {
			return weberr.NotFound(fmt.Errorf("no current consent for %s", id))
		}
		if err != nil {
			return fmt.Errorf("loading consent[%s]: %w", id, err)
		}
		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

// HandleSave records a choice. Necessary cookies cannot be declined.
func HandleSave(st *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		var pn PreferencesNew
		if err := web.DecodeLoose(w, r, &pn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		p := Preferences{
			Necessary:  true,
			Functional: pn.Functional,
			Analytics:  pn.Analytics,
			Timestamp:  time.Now().UTC(),
		}
		if err := st.Save(ctx, id, p); err != nil {
			return fmt.Errorf("saving consent[%s]: %w", id, err)
		}
		return web.Respond(ctx, w, p, http.StatusOK)
	}
}
