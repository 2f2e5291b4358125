// Package contact relays the site's contact form to the shop's mailbox.
package contact

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/validate"
)

type MessageNew struct {
	Email   string `json:"email" validate:"required,email,max=255"`
	Message string `json:"message" validate:"required,max=5000"`
}

type Relay interface {
	ContactMessage(ctx context.Context, from, message string) error
}

func HandleSend(rl Relay) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var m MessageNew
		if err := web.Decode(w, r, &m); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		m.Email = strings.TrimSpace(m.Email)
		m.Message = strings.TrimSpace(m.Message)
		if err := validate.Check(m); err != nil {
			return weberr.BadRequest(err)
		}

		if err := rl.ContactMessage(ctx, m.Email, m.Message); err != nil {
			return weberr.BadGateway(err)
		}

		return web.Respond(ctx, w, map[string]bool{"success": true}, http.StatusOK)
	}
}
