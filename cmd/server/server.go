package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/otbox/storefront/api"
	"github.com/otbox/storefront/api/background"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/config"
	"github.com/otbox/storefront/core/notify"
	"github.com/otbox/storefront/core/payment"
	"github.com/otbox/storefront/database"
	"github.com/otbox/storefront/email"
	"github.com/otbox/storefront/rate"
	"github.com/otbox/storefront/storage"
	"github.com/otbox/storefront/yookassa"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var build = "develop"

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	const prefix = "OTBOX"
	cfg := config.Config{
		Version: conf.Version{
			Build: build,
			Desc:  "OT-Box storefront API",
		},
	}

	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	logger.Infof("startup config:\n%s", out)

	proxies, err := web.ParseProxies(cfg.Web.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parsing trusted proxies: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	var rdb *redis.Client
	paymentLimiter := rate.Checker(rate.NewWindow(cfg.Limits.PaymentRequests, cfg.Limits.PaymentWindow))
	contactLimiter := rate.Checker(rate.NewWindow(cfg.Limits.ContactRequests, cfg.Limits.ContactWindow))

	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}

		paymentLimiter = rate.NewRedisWindow(rdb, "payments", cfg.Limits.PaymentRequests, cfg.Limits.PaymentWindow)
		contactLimiter = rate.NewRedisWindow(rdb, "contact", cfg.Limits.ContactRequests, cfg.Limits.ContactWindow)
	} else {
		logger.Warn("no redis configured: rate limits are per process, carts and consent are disabled")
	}

	throttle := rate.NewBucket(cfg.Limits.Burst, 3*time.Minute, cfg.Limits.BurstRPS)
	defer throttle.Close()

	gw, err := yookassa.New(yookassa.Config{
		ShopID:    cfg.Yookassa.ShopID,
		SecretKey: cfg.Yookassa.SecretKey,
		URL:       cfg.Yookassa.URL,
		Timeout:   cfg.Yookassa.Timeout,
	})
	if err != nil {
		return fmt.Errorf("building the yookassa client: %w", err)
	}

	signer, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		AccessKeySecret: cfg.Storage.AccessKeySecret,
		Bucket:          cfg.Storage.Bucket,
	})
	if err != nil {
		return fmt.Errorf("building the storage signer: %w", err)
	}

	mail, err := email.New(email.Config{
		APIKey:  cfg.Email.APIKey,
		URL:     cfg.Email.URL,
		Timeout: cfg.Email.Timeout,
	})
	if err != nil {
		return fmt.Errorf("building the email client: %w", err)
	}

	site := strings.TrimSuffix(cfg.Site.URL, "/")
	notifier := notify.New(mail, notify.Config{
		From:    cfg.Email.From,
		Admin:   cfg.Email.AdminAddress,
		SiteURL: site,
		LinkTTL: cfg.Storage.DownloadTTL,
	}, logger)

	bg := background.New(logger)

	apiCfg := api.APIConfig{
		CorsOrigin:     cfg.Cors.Origin,
		TrustedProxies: proxies,
		Log:            logger,
		DB:             db,
		Background:     bg,
		Gateway:        gw,
		Signer:         signer,
		Notifier:       notifier,
		Payment: payment.Settings{
			ReturnURL:      site + "/thank-you",
			VATCode:        cfg.Yookassa.VATCode,
			PaymentMode:    cfg.Yookassa.PaymentMode,
			PaymentSubject: cfg.Yookassa.PaymentSubject,
		},
		DownloadTTL:    cfg.Storage.DownloadTTL,
		Throttle:       throttle,
		PaymentLimiter: paymentLimiter,
		ContactLimiter: contactLimiter,
		AdminTokenHash: cfg.Admin.TokenHash,
	}
	if rdb != nil {
		apiCfg.Redis = rdb
	}

	mux := api.APIMux(apiCfg)

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}
