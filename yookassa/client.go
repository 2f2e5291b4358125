// Package yookassa is a client for the parts of the YooKassa v3 REST API the
// storefront uses: creating a redirect payment and reading a payment back.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrNotFound means the gateway does not know the payment id.
	ErrNotFound = errors.New("payment not found")

	// ErrUnauthorized means the shop credentials were rejected.
	ErrUnauthorized = errors.New("gateway rejected credentials")

	// ErrUnavailable means the gateway could not be reached or the circuit is open.
	ErrUnavailable = errors.New("gateway unavailable")
)

type Config struct {
	ShopID    string
	SecretKey string
	URL       string
	Timeout   time.Duration
}

type Client struct {
	shopID    string
	secretKey string
	base      *url.URL
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[[]byte]
}

func New(cfg Config) (*Client, error) {
	if cfg.ShopID == "" || cfg.SecretKey == "" {
		return nil, errors.New("yookassa shop id and secret key are required")
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing yookassa url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "yookassa",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// Answers about the request itself say nothing about the gateway's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.As(err, new(*RequestError))
		},
	})

	return &Client{
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		base:      base,
		http:      &http.Client{Timeout: timeout},
		cb:        cb,
	}, nil
}

// CreatePayment registers a payment. The gateway returns the original payment
// for a repeated idempotenceKey instead of creating a second one.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest, idempotenceKey string) (Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Payment{}, fmt.Errorf("encoding payment request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/payments", body, idempotenceKey)
	if err != nil {
		return Payment{}, fmt.Errorf("creating payment: %w", err)
	}

	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payment{}, fmt.Errorf("decoding created payment: %w", err)
	}
	return p, nil
}

// GetPayment reads the authoritative state of a payment.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	raw, err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, "")
	if err != nil {
		return Payment{}, fmt.Errorf("fetching payment[%s]: %w", id, err)
	}

	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payment{}, fmt.Errorf("decoding payment[%s]: %w", id, err)
	}
	return p, nil
}

// RequestError is a 4xx answer other than 401 and 404.
type RequestError struct {
	Status      int
	Code        string
	Description string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("yookassa %d %s: %s", e.Status, e.Code, e.Description)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotenceKey string) ([]byte, error) {
	raw, err := c.cb.Execute(func() ([]byte, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.shopID, c.secretKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idempotenceKey != "" {
			req.Header.Set("Idempotence-Key", idempotenceKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
		}

		return b, statusError(resp.StatusCode, b)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return raw, err
}

func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var ae apiError
	_ = json.Unmarshal(body, &ae)

	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status >= 500 || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d %s", ErrUnavailable, status, ae.Code)
	default:
		return &RequestError{Status: status, Code: ae.Code, Description: ae.Description}
	}
}
