package cart

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
	"github.com/jmoiron/sqlx"
	"github.com/otbox/storefront/api/web"
	"github.com/otbox/storefront/api/weberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCartID = "0b7c4f1e-9d2a-4e3b-8c5f-6a1d2e3f4a5b"

type cartTest struct {
	db     *sqlx.DB
	mock   sqlmock.Sqlmock
	st     *Store
	router *mux.Router
	errs   []error
}

func newCartTest(t *testing.T) *cartTest {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	st, _ := newStore(t)
	ct := &cartTest{db: sqlx.NewDb(mockDB, "postgres"), mock: mock, st: st, router: mux.NewRouter()}

	ct.handle(http.MethodGet, "/carts/{id}", HandleShow(ct.st))
	ct.handle(http.MethodPut, "/carts/{id}/items", HandleCreateItem(ct.db, ct.st))
	ct.handle(http.MethodDelete, "/carts/{id}/items/{item_id}", HandleDeleteItem(ct.st))
	ct.handle(http.MethodDelete, "/carts/{id}", HandleDelete(ct.st))
	return ct
}

func (ct *cartTest) handle(method, path string, h web.Handler) {
	ct.router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if err := h(r.Context(), w, r); err != nil {
			ct.errs = append(ct.errs, err)
			_, code, ok := weberr.Response(err)
			if !ok {
				code = http.StatusInternalServerError
			}
			w.WriteHeader(code)
		}
	}).Methods(method)
}

func (ct *cartTest) do(t *testing.T, method, path, body string) (int, View) {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	ct.router.ServeHTTP(w, r)

	var v View
	if w.Body.Len() > 0 {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	}
	return w.Code, v
}

func (ct *cartTest) expectProduct(sku, price string) {
	now := time.Now()
	ct.mock.ExpectQuery(`FROM products WHERE sku = \$1 AND is_active`).
		WithArgs(sku).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "sku", "title", "price_rub", "description", "file_path", "is_active", "created_at", "updated_at"}).
			AddRow("id-"+sku, sku, "Title "+sku, price, "desc", sku+".zip", true, now, now))
}

func TestCartFlow(t *testing.T) {
	ct := newCartTest(t)
	base := "/carts/" + testCartID

	ct.expectProduct("office-package", "3500.00")
	code, v := ct.do(t, http.MethodPut, base+"/items", `{"sku":"office-package"}`)
	assert.Equal(t, http.StatusCreated, code)
	require.NotNil(t, v.Added)
	assert.True(t, *v.Added)
	assert.Equal(t, "Title office-package", v.Items[0].Title)

	ct.expectProduct("office-package", "3500.00")
	code, v = ct.do(t, http.MethodPut, base+"/items", `{"sku":"office-package"}`)
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, v.Added)
	assert.False(t, *v.Added)
	assert.Equal(t, 1, v.TotalItems)

	ct.expectProduct("salon-package", "3900.00")
	_, v = ct.do(t, http.MethodPut, base+"/items", `{"sku":"salon-package"}`)
	assert.Equal(t, 2, v.TotalItems)
	assert.Equal(t, "7400.00", v.TotalPrice.StringFixed(2))

	code, v = ct.do(t, http.MethodDelete, base+"/items/"+v.Items[0].ID, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"salon-package"}, v.SKUs())

	code, _ = ct.do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, code)

	code, v = ct.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, v.Items)

	assert.Empty(t, ct.errs)
	assert.NoError(t, ct.mock.ExpectationsWereMet())
}

func TestCartRejects(t *testing.T) {
	ct := newCartTest(t)

	code, _ := ct.do(t, http.MethodGet, "/carts/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ct.do(t, http.MethodPut, "/carts/"+testCartID+"/items", `{"sku":"Office Package"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	ct.mock.ExpectQuery(`FROM products WHERE sku = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"product_id"}))
	code, _ = ct.do(t, http.MethodPut, "/carts/"+testCartID+"/items", `{"sku":"warehouse-package"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCheckoutEmptyCart(t *testing.T) {
	st, _ := newStore(t)
	h := HandleCheckout(st, nil, nil, nil)

	r := httptest.NewRequest(http.MethodPost, "/carts/"+testCartID+"/checkout", strings.NewReader(`{"email":"buyer@example.com"}`))
	r = mux.SetURLVars(r, map[string]string{"id": testCartID})

	err := h(context.Background(), httptest.NewRecorder(), r)
	_, code, _ := weberr.Response(err)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}
