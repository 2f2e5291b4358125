package test

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/otbox/storefront/api"
	"github.com/otbox/storefront/api/background"
	"github.com/otbox/storefront/core/auth"
	"github.com/otbox/storefront/core/notify"
	"github.com/otbox/storefront/core/payment"
	"github.com/otbox/storefront/database"
	"github.com/otbox/storefront/email"
	"github.com/otbox/storefront/rate"
	"github.com/otbox/storefront/yookassa"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	adminToken = "integration-admin-token-0123456789abcdef"
	siteURL    = "https://otbox.test"
)

type TestEnv struct {
	*httptest.Server
	DB      *sqlx.DB
	Gateway *mockYookassa
	Mail    *mailbox
	bg      *background.Background
}

// NewTestEnv starts a throwaway postgres, migrates it and serves the full
// router against a mock gateway, an in-memory redis and a recording mailer.
func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, err := startPostgres(t, name)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	gw := newMockYookassa()
	gwSrv := httptest.NewServer(gw.handle())
	t.Cleanup(gwSrv.Close)

	client, err := yookassa.New(yookassa.Config{
		ShopID:    "123456",
		SecretKey: "test_secret",
		URL:       gwSrv.URL,
		Timeout:   5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashToken(adminToken)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	mail := &mailbox{}
	notifier := notify.New(mail, notify.Config{
		From:    "OT-Box <no-reply@otbox.test>",
		Admin:   "admin@otbox.test",
		SiteURL: siteURL,
		LinkTTL: 2 * time.Hour,
	}, log)

	bg := background.New(log)

	mux := api.APIMux(api.APIConfig{
		Log:        log,
		DB:         db,
		Redis:      rdb,
		Background: bg,
		Gateway:    client,
		Signer:     signer{},
		Notifier:   notifier,
		Payment: payment.Settings{
			ReturnURL:      siteURL + "/thank-you",
			VATCode:        1,
			PaymentMode:    "full_payment",
			PaymentSubject: "commodity",
		},
		DownloadTTL:    2 * time.Hour,
		PaymentLimiter: rate.NewWindow(100, time.Minute),
		ContactLimiter: rate.NewWindow(100, time.Minute),
		AdminTokenHash: hash,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:  srv,
		DB:      db,
		Gateway: gw,
		Mail:    mail,
		bg:      bg,
	}, nil
}

// Drain waits for the emails queued by earlier requests.
func (env *TestEnv) Drain(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := env.bg.Shutdown(ctx); err != nil {
		t.Fatalf("waiting for background tasks: %v", err)
	}
}

func startPostgres(t *testing.T, name string) (*sqlx.DB, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	pool.MaxWait = 2 * time.Minute

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Name:       "otbox-" + name + "-" + fmt.Sprint(time.Now().UnixNano()),
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=otbox",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres: %w", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres: %v", err)
		}
	})

	if err := res.Expire(180); err != nil {
		return nil, err
	}

	var db *sqlx.DB
	err = pool.Retry(func() error {
		var err error
		db, err = database.Open(database.Config{
			User:         "postgres",
			Password:     "postgres",
			Host:         res.GetHostPort("5432/tcp"),
			Name:         "otbox",
			MaxIdleConns: 2,
			MaxOpenConns: 10,
			DisableTLS:   true,
		})
		if err != nil {
			return err
		}
		return db.Ping()
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for postgres: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	return db, nil
}

type signer struct{}

func (signer) SignURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://files.otbox.test/%s?Expires=%d", strings.TrimPrefix(path, "/"), int(ttl.Seconds())), nil
}

// mailbox records every message instead of sending it.
type mailbox struct {
	mu   sync.Mutex
	msgs []email.Message
}

func (m *mailbox) Send(ctx context.Context, msg email.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.msgs = append(m.msgs, msg)
	return fmt.Sprintf("msg-%d", len(m.msgs)), nil
}

// To returns the messages addressed to rcpt whose subject contains subject.
func (m *mailbox) To(rcpt, subject string) []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []email.Message
	for _, msg := range m.msgs {
		if len(msg.To) == 0 || msg.To[0] != rcpt {
			continue
		}
		if strings.Contains(msg.Subject, subject) {
			out = append(out, msg)
		}
	}
	return out
}
