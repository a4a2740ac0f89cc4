package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/armory-atlas/internal/adapter/storage"
	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/core/service"
)

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) SetIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) ReleaseIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type testServer struct {
	lending *service.LendingService
	catalog *service.CatalogService
	guard   *service.RequestGuard
	router  http.Handler
	itemID  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	ts := &testServer{
		lending: service.NewLendingService(store),
		catalog: service.NewCatalogService(store, nil),
		guard:   service.NewRequestGuard(&memoryIdempotency{keys: make(map[string]bool)}, nil),
	}
	ts.router = NewHTTPHandler(ts.lending, ts.catalog, ts.guard, nil).Router()

	ctx := context.Background()
	_, err := ts.lending.RegisterUser(ctx, domain.User{SSN: "900101-1234", Name: "Test Person"})
	require.NoError(t, err)
	_, err = ts.lending.RegisterProduct(ctx, domain.Product{ID: "BOOT-1", Name: "Combat boot", Type: "Boots"})
	require.NoError(t, err)
	item, err := ts.lending.RegisterItem(ctx, "BOOT-1", "10", 1)
	require.NoError(t, err)
	ts.itemID = item.ID
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHTTP_Health(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHTTP_BorrowAndReturn(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/loans",
		`{"request_id":"r1","ssn":"900101-1234","item_id":"`+ts.itemID+`","borrow_date":"2024-03-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loan := decodeBody[LoanReply](t, rec).Loan
	assert.Equal(t, ts.itemID, loan.ItemID)
	assert.Equal(t, "2024-03-01", loan.BorrowDate.Format("2006-01-02"))

	rec = ts.do(t, http.MethodGet, "/api/stock/BOOT-1/10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[StockReply](t, rec).Quantity)

	// same request id again
	rec = ts.do(t, http.MethodPost, "/api/loans",
		`{"request_id":"r1","ssn":"900101-1234","item_id":"`+ts.itemID+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate request")

	rec = ts.do(t, http.MethodPost, "/api/loans",
		`{"request_id":"r2","ssn":"900101-1234","item_id":"`+ts.itemID+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "item already borrowed")

	rec = ts.do(t, http.MethodPost, "/api/items/"+ts.itemID+"/return", `{"return_date":"2024-03-05"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := decodeBody[LoanReply](t, rec).Loan
	require.NotNil(t, returned.ReturnDate)

	rec = ts.do(t, http.MethodPost, "/api/loans/"+loan.ID+"/return", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/items/"+ts.itemID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.9, decodeBody[domain.Item](t, rec).Condition, 1e-9)
}

func TestHTTP_ReturnWithChunkedEmptyBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/loans", `{"ssn":"900101-1234","item_id":"`+ts.itemID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// a reader of unknown length leaves ContentLength at -1, as with chunked encoding
	req := httptest.NewRequest(http.MethodPost, "/api/items/"+ts.itemID+"/return", io.MultiReader())
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeBody[LoanReply](t, rec).Loan.ReturnDate)

	rec = ts.do(t, http.MethodPost, "/api/items/"+ts.itemID+"/return", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_BorrowAnyByProductSize(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/loans", `{"ssn":"900101-1234","product_id":"BOOT-1","size":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, ts.itemID, decodeBody[LoanReply](t, rec).Loan.ItemID)

	rec = ts.do(t, http.MethodPost, "/api/loans", `{"ssn":"900101-1234","product_id":"BOOT-1","size":"10"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTP_Registration(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/users", `{"ssn":" 850505-4321 ","name":"  New Person"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.User{SSN: "850505-4321", Name: "New Person"}, decodeBody[domain.User](t, rec))

	rec = ts.do(t, http.MethodPost, "/api/users", `{"ssn":"850505-4321","name":"New Person"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/products", `{"product_id":"HELMET-1 ","name":"Helmet","type":" Headwear"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.Product{ID: "HELMET-1", Name: "Helmet", Type: "Headwear"}, decodeBody[domain.Product](t, rec))

	rec = ts.do(t, http.MethodPost, "/api/items", `{"product_id":"HELMET-1","size":"L"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	item := decodeBody[domain.Item](t, rec)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 1.0, item.Condition)

	rec = ts.do(t, http.MethodPost, "/api/items", `{"product_id":"HELMET-1","size":"L","condition":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/items", `{"product_id":"NOPE","size":"L"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/users", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_Queries(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/loans", `{"ssn":"900101-1234","item_id":"`+ts.itemID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/items/search?q=boot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeBody[[]domain.StockRow](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Quantity)

	rec = ts.do(t, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]domain.StockRow](t, rec))

	rec = ts.do(t, http.MethodGet, "/api/items/random", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/900101-1234/loans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.LoanDetail](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/users/nobody/loans", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/random", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "900101-1234", decodeBody[domain.User](t, rec).SSN)

	rec = ts.do(t, http.MethodGet, "/api/stats/borrows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	counts := decodeBody[[]domain.BorrowCount](t, rec)
	require.Len(t, counts, 1)
	assert.Equal(t, 1, counts[0].Active)

	rec = ts.do(t, http.MethodGet, "/api/loans?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/loans?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.LoanDetail](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/stock/BOOT-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[StockReply](t, rec).Quantity)
}

func TestHTTP_InvalidDate(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/loans",
		`{"ssn":"900101-1234","item_id":"`+ts.itemID+`","borrow_date":"01/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
