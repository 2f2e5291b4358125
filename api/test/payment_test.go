package test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/yookassa"
	"github.com/shopspring/decimal"
)

type mockYookassa struct {
	mu       sync.Mutex
	payments map[string]yookassa.Payment

	// expectedTotal, when set, rejects payment requests for another amount.
	expectedTotal decimal.Decimal
}

func newMockYookassa() *mockYookassa {
	return &mockYookassa{payments: make(map[string]yookassa.Payment)}
}

func (m *mockYookassa) expect(total string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expectedTotal = decimal.RequireFromString(total)
}

// settle moves a payment to status, the way a buyer paying or abandoning
// the hosted page would.
func (m *mockYookassa) settle(id string, status yookassa.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.payments[id]
	p.Status = status
	p.Paid = status == yookassa.Succeeded
	m.payments[id] = p
}

func (m *mockYookassa) handle() http.Handler {
	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok || r.Header.Get("Idempotence-Key") == "" {
			web.Respond(context.Background(), w, nil, http.StatusUnauthorized)
			return
		}

		var req struct {
			Amount struct {
				Value    decimal.Decimal `json:"value"`
				Currency string          `json:"currency"`
			} `json:"amount"`
			Metadata map[string]string `json:"metadata"`
			Receipt  struct {
				Items []json.RawMessage `json:"items"`
			} `json:"receipt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			web.Respond(context.Background(), w, nil, http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if !m.expectedTotal.IsZero() && !req.Amount.Value.Equal(m.expectedTotal) {
			web.Respond(context.Background(), w, map[string]string{"type": "error", "code": "invalid_request"}, http.StatusBadRequest)
			return
		}

		id := uuid.NewString()
		p := yookassa.Payment{
			ID:       id,
			Status:   yookassa.Pending,
			Amount:   yookassa.RUB(req.Amount.Value),
			Metadata: req.Metadata,
			Confirmation: &yookassa.Confirmation{
				Type:            "redirect",
				ConfirmationURL: "https://yoomoney.test/checkout/" + id,
			},
			CreatedAt: time.Now().UTC(),
			Test:      true,
		}
		m.payments[id] = p

		web.Respond(context.Background(), w, p, http.StatusOK)
	})

	show := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		p, ok := m.payments[mux.Vars(r)["id"]]
		m.mu.Unlock()

		if !ok {
			web.Respond(context.Background(), w, map[string]string{"type": "error", "code": "not_found"}, http.StatusNotFound)
			return
		}
		web.Respond(context.Background(), w, p, http.StatusOK)
	})

	r := mux.NewRouter()
	r.Handle("/payments", create).Methods(http.MethodPost)
	r.Handle("/payments/{id}", show).Methods(http.MethodGet)
	return r
}
