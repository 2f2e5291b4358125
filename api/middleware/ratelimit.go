package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/metrics"
	"github.com/otbox/storefront/rate"
	"github.com/sirupsen/logrus"
)

// RateLimit rejects a client with 429 before the handler reads the body. When
// the limiter's backing store fails the request is let through and logged.
func RateLimit(name string, lim rate.Checker, log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			ip := clientIP(ctx, r)

			ok, err := lim.Allow(ctx, ip)
			if err != nil {
				log.WithFields(logrus.Fields{
					"req_id":  ContextRequestID(ctx),
					"limiter": name,
				}).WithError(err).Warn("rate limiter unavailable, allowing request")
				return handler(ctx, w, r)
			}

			if !ok {
				metrics.RateLimited.WithLabelValues(name).Inc()
				return weberr.TooManyRequests(
					errors.New("rate limit exceeded"),
					weberr.WithFields(map[string]any{"limiter": name, "client_ip": ip}),
				)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
