package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/api/background"
	"github.com/otbox/storefront/api/middleware"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/otbox/storefront/core/auth"
	"github.com/otbox/storefront/core/cart"
	"github.com/otbox/storefront/core/consent"
	"github.com/otbox/storefront/core/contact"
	"github.com/otbox/storefront/core/download"
	"github.com/otbox/storefront/core/order"
	"github.com/otbox/storefront/core/payment"
	"github.com/otbox/storefront/core/product"
	"github.com/otbox/storefront/database"
	"github.com/otbox/storefront/rate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Notifier is every email the routes send.
type Notifier interface {
	payment.Confirmer
	payment.Notifier
	order.Notifier
	contact.Relay
}

type APIConfig struct {
	CorsOrigin     string
	TrustedProxies web.Proxies
	Log            logrus.FieldLogger
	DB             *sqlx.DB
	Redis          redis.UniversalClient
	Background     *background.Background
	Gateway        payment.Gateway
	Signer         payment.Signer
	Notifier       Notifier
	Payment        payment.Settings
	DownloadTTL    time.Duration
	Throttle       rate.Checker
	PaymentLimiter rate.Checker
	ContactLimiter rate.Checker
	AdminTokenHash string
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.ClientIP(cfg.TrustedProxies))
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	if cfg.Throttle != nil {
		a.mw = append(a.mw, middleware.RateLimit("throttle", cfg.Throttle, cfg.Log))
	}

	paymentLimit := middleware.RateLimit("payments", cfg.PaymentLimiter, cfg.Log)
	contactLimit := middleware.RateLimit("contact", cfg.ContactLimiter, cfg.Log)
	admin := auth.Admin(cfg.AdminTokenHash)

	creator := payment.NewCreator(cfg.DB, cfg.Gateway, cfg.Payment)
	webhook := payment.NewWebhook(cfg.DB, cfg.Gateway, cfg.Signer, cfg.Notifier, cfg.DownloadTTL, cfg.Log)

	a.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	a.Handle(http.MethodGet, "/healthz", handleHealth(cfg.DB))

	a.Handle(http.MethodGet, "/products", product.HandleList(cfg.DB))
	a.Handle(http.MethodGet, "/products/{sku}", product.HandleShow(cfg.DB))

	a.Handle(http.MethodPost, "/payments", payment.HandleCreate(creator, cfg.Notifier, cfg.Background), paymentLimit)
	a.Handle(http.MethodPost, "/webhooks/yookassa", payment.HandleWebhook(webhook))
	a.Handle(http.MethodPost, "/downloads", download.HandleResolve(cfg.DB))
	a.Handle(http.MethodPost, "/contact", contact.HandleSend(cfg.Notifier), contactLimit)

	if cfg.Redis != nil {
		carts := cart.NewStore(cfg.Redis)
		a.Handle(http.MethodGet, "/carts/{id}", cart.HandleShow(carts))
		a.Handle(http.MethodDelete, "/carts/{id}", cart.HandleDelete(carts))
		a.Handle(http.MethodPut, "/carts/{id}/items", cart.HandleCreateItem(cfg.DB, carts))
		a.Handle(http.MethodDelete, "/carts/{id}/items/{item_id}", cart.HandleDeleteItem(carts))
		a.Handle(http.MethodPost, "/carts/{id}/checkout", cart.HandleCheckout(carts, creator, cfg.Notifier, cfg.Background), paymentLimit)

		consents := consent.NewStore(cfg.Redis)
		a.Handle(http.MethodGet, "/consent/{id}", consent.HandleShow(consents))
		a.Handle(http.MethodPut, "/consent/{id}", consent.HandleSave(consents))
	}

	a.Handle(http.MethodGet, "/admin/orders/stats", order.HandleStats(cfg.DB), admin)
	a.Handle(http.MethodGet, "/admin/orders", order.HandleList(cfg.DB), admin)
	a.Handle(http.MethodPost, "/admin/orders/{id}/email", order.HandleMessage(cfg.DB, cfg.Notifier), admin)
	a.Handle(http.MethodPost, "/admin/email/test", order.HandleTestEmail(cfg.Notifier), admin)
	a.Handle(http.MethodPost, "/admin/reminders", order.HandleReminders(cfg.DB, cfg.Notifier, cfg.Log), admin)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}

func handleHealth(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := database.StatusCheck(ctx, db); err != nil {
			err = errors.Join(errors.New("database unreachable"), err)
			return weberr.NewError(err, "database unavailable", http.StatusServiceUnavailable)
		}
		return web.Respond(ctx, w, map[string]string{"status": "ok"}, http.StatusOK)
	}
}
