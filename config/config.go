package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/database"
)

type Config struct {
	conf.Version
	Web      Web
	Cors     Cors
	DB       database.Config
	Redis    Redis
	Yookassa Yookassa
	Site     Site
	Storage  Storage
	Email    Email
	Limits   Limits
	Admin    Admin
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8080"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies  []string      `conf:"default:127.0.0.1/32"`
}

type Cors struct {
	Origin string
}

type Redis struct {
	Address  string
	Password string `conf:"mask"`
	DB       int    `conf:"default:0"`
}

type Yookassa struct {
	ShopID         string        `conf:"required"`
	SecretKey      string        `conf:"required,mask"`
	URL            string        `conf:"default:https://api.yookassa.ru/v3"`
	Timeout        time.Duration `conf:"default:10s"`
	VATCode        int           `conf:"default:1"`
	PaymentMode    string        `conf:"default:full_payment"`
	PaymentSubject string        `conf:"default:commodity"`
}

type Site struct {
	URL string `conf:"required"`
}

type Storage struct {
	Endpoint        string        `conf:"required"`
	AccessKeyID     string        `conf:"required"`
	AccessKeySecret string        `conf:"required,mask"`
	Bucket          string        `conf:"required"`
	DownloadTTL     time.Duration `conf:"default:120m"`
}

type Email struct {
	APIKey       string        `conf:"required,mask"`
	From         string        `conf:"required"`
	AdminAddress string        `conf:"required"`
	URL          string        `conf:"default:https://api.resend.com"`
	Timeout      time.Duration `conf:"default:10s"`
}

type Limits struct {
	PaymentRequests int           `conf:"default:10"`
	PaymentWindow   time.Duration `conf:"default:10m"`
	ContactRequests int           `conf:"default:3"`
	ContactWindow   time.Duration `conf:"default:10m"`
	BurstRPS        float64       `conf:"default:5"`
	Burst           int           `conf:"default:20"`
}

type Admin struct {
	TokenHash string `conf:"required,mask"`
}

// Validate rejects values that parse but cannot work. It is run once after
// conf.Parse so the server never starts half configured.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Site.URL)
	if err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("site url %q must be absolute", c.Site.URL))
	}

	if _, err := url.ParseRequestURI(c.Yookassa.URL); err != nil {
		errs = append(errs, fmt.Errorf("yookassa url: %w", err))
	}

	if _, err := mail.ParseAddress(c.Email.From); err != nil {
		errs = append(errs, fmt.Errorf("email from %q: %w", c.Email.From, err))
	}

	if _, err := mail.ParseAddress(c.Email.AdminAddress); err != nil {
		errs = append(errs, fmt.Errorf("email admin address %q: %w", c.Email.AdminAddress, err))
	}

	if _, err := web.ParseProxies(c.Web.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("web: %w", err))
	}

	if c.Storage.DownloadTTL <= 0 {
		errs = append(errs, errors.New("storage download ttl must be positive"))
	}

	if c.Limits.PaymentRequests <= 0 || c.Limits.PaymentWindow <= 0 {
		errs = append(errs, errors.New("payment rate limit must be positive"))
	}

	if c.Limits.ContactRequests <= 0 || c.Limits.ContactWindow <= 0 {
		errs = append(errs, errors.New("contact rate limit must be positive"))
	}

	return errors.Join(errs...)
}
