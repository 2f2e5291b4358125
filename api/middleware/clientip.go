package middleware

import (
	"context"
	"net/http"

	"github.com/otbox/storefront/api/web"
)

type clientIPKeyCtx int

const clientIPKey clientIPKeyCtx = 1

// ClientIP resolves the caller's address once per request. Rate limits and
// logs read it from the context.
func ClientIP(proxies web.Proxies) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			ctx = context.WithValue(ctx, clientIPKey, proxies.ClientIP(r))
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func clientIP(ctx context.Context, r *http.Request) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return web.RemoteHost(r)
}
