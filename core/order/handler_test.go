package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/otbox/storefront/api/weberr"
	"github.com/shopspring/decimal"
)

type fakeNotifier struct {
	fakeReminder
	messages []string
}

func (f *fakeNotifier) OrderMessage(ctx context.Context, to, subject, message string) error {
	f.messages = append(f.messages, to+": "+subject)
	return nil
}

func (f *fakeNotifier) Test(ctx context.Context, to string) error {
	f.messages = append(f.messages, "test: "+to)
	return nil
}

func TestHandleListLimit(t *testing.T) {
	db, _ := newMock(t)
	h := HandleList(db)

	for _, limit := range []string{"0", "501", "abc"} {
		r := httptest.NewRequest(http.MethodGet, "/admin/orders?limit="+limit, nil)
		err := h(r.Context(), httptest.NewRecorder(), r)

		_, code, ok := weberr.Response(err)
		if !ok || code != http.StatusBadRequest {
			t.Errorf("limit %s: expected 400, got %v", limit, err)
		}
	}
}

func TestHandleStats(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "succeeded", "canceled", "revenue"}).
			AddRow(1, 2, 0, "7400.00"))

	r := httptest.NewRequest(http.MethodGet, "/admin/orders/stats", nil)
	w := httptest.NewRecorder()
	if err := HandleStats(db)(r.Context(), w, r); err != nil {
		t.Fatal(err)
	}

	var s Stats
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Succeeded != 2 || !s.Revenue.Equal(decimal.RequireFromString("7400")) {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestHandleMessage(t *testing.T) {
	db, mock := newMock(t)
	n := &fakeNotifier{}

	id := "7d0a1c43-4c9e-4b0c-9a51-0b3e8f9c2a11"
	now := time.Now()

	mock.ExpectQuery("FROM orders WHERE order_id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "email", "payment_status", "payment_amount", "created_at", "updated_at"}).
			AddRow(id, "buyer@example.com", "succeeded", "3500.00", now, now))
	mock.ExpectExec("UPDATE orders SET sent_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := mux.NewRouter()
	router.HandleFunc("/admin/orders/{id}/email", func(w http.ResponseWriter, r *http.Request) {
		if err := HandleMessage(db, n)(r.Context(), w, r); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	body := `{"subject":"Ваш заказ","message":"Повторно высылаем ссылки"}`
	r := httptest.NewRequest(http.MethodPost, "/admin/orders/"+id+"/email", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(n.messages) != 1 || n.messages[0] != "buyer@example.com: Ваш заказ" {
		t.Errorf("unexpected messages %v", n.messages)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
