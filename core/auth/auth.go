// Package auth guards the operator routes with a bearer token whose bcrypt
// hash is configured at startup.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/core/claims"
	"golang.org/x/crypto/bcrypt"
)

// MinTokenLength is enforced when tokens are generated.
const MinTokenLength = 32

// HashToken returns the value to configure as the admin token hash.
func HashToken(token string) (string, error) {
	if len(token) < MinTokenLength {
		return "", errors.New("token is too short")
	}

	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func Admin(hash string) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			token, ok := bearer(r)
			if !ok {
				return weberr.NotAuthorized(errors.New("missing bearer token"))
			}

			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
				return weberr.NotAuthorized(errors.New("invalid admin token"))
			}

			ctx = claims.Set(ctx, claims.Claims{Subject: "operator", Role: claims.RoleAdmin})
			return handler(ctx, w, r.WithContext(ctx))
		}
		return h
	}
	return m
}

func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
