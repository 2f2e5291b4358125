// Package email sends transactional mail through the Resend HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable means the provider could not be reached or the circuit is open.
var ErrUnavailable = errors.New("email provider unavailable")

type Config struct {
	APIKey  string
	URL     string
	Timeout time.Duration
}

type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type Client struct {
	apiKey string
	url    string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker[string]
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("email api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "email",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.As(err, new(*RejectedError))
		},
	})

	return &Client{
		apiKey: cfg.APIKey,
		url:    strings.TrimSuffix(cfg.URL, "/") + "/emails",
		http:   &http.Client{Timeout: timeout},
		cb:     cb,
	}, nil
}

// RejectedError is a 4xx answer: the message itself was refused.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("email rejected with status %d: %s", e.Status, e.Message)
}

// Send posts one message and returns the provider's id for it.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("message has no recipient")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}

	id, err := c.cb.Execute(func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err != nil {
			return "", fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
		}

		var out struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &out)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return out.ID, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		default:
			return "", &RejectedError{Status: resp.StatusCode, Message: out.Message}
		}
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return "", fmt.Errorf("sending %q: %w", msg.Subject, err)
	}
	return id, nil
}
