package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/core/claims"
	"github.com/otbox/storefront/validate"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Notifier interface {
	Reminder
	OrderMessage(ctx context.Context, to, subject, message string) error
	Test(ctx context.Context, to string) error
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxListLimit {
				return weberr.BadRequest(fmt.Errorf("limit must be between 1 and %d", maxListLimit))
			}
			limit = n
		}

		ords, err := List(ctx, db, limit)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

func HandleStats(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s, err := FetchStats(ctx, db)
		if err != nil {
			return fmt.Errorf("computing order stats: %w", err)
		}
		return web.Respond(ctx, w, s, http.StatusOK)
	}
}

// HandleMessage emails an operator's message to the buyer of an order.
func HandleMessage(db *sqlx.DB, n Notifier) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		var m MessageNew
		if err := web.Decode(w, r, &m); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(m); err != nil {
			return weberr.BadRequest(err)
		}

		o, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(fmt.Errorf("order[%s] not found", id))
			}
			return fmt.Errorf("fetching order[%s]: %w", id, err)
		}

		if err := n.OrderMessage(ctx, o.Email, m.Subject, m.Message); err != nil {
			return weberr.BadGateway(err)
		}

		if err := MarkSent(ctx, db, o.ID, time.Now().UTC()); err != nil {
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleTestEmail(n Notifier) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var te TestEmail
		if err := web.Decode(w, r, &te); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(te); err != nil {
			return weberr.BadRequest(err)
		}

		if err := n.Test(ctx, te.To); err != nil {
			return weberr.BadGateway(err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleReminders(db *sqlx.DB, n Notifier, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		log := log
		if c, err := claims.Get(ctx); err == nil {
			log = log.WithField("by", c.Subject)
		}

		rep, err := SendReminders(ctx, db, n, log, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("sending reminders: %w", err)
		}
		return web.Respond(ctx, w, rep, http.StatusOK)
	}
}
