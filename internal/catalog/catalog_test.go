package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vethome-platform/internal/gateway"
)

func TestCreateItemRequestValidate(t *testing.T) {
	stock := -1
	cases := []struct {
		name string
		req  CreateItemRequest
		want error
	}{
		{"bad type", CreateItemRequest{Type: "gift", Code: "0121100000000", Name: "x"}, ErrInvalidType},
		{"short code", CreateItemRequest{Code: "123", Name: "x"}, ErrInvalidCode},
		{"no name", CreateItemRequest{Code: "0121100000000"}, ErrInvalidName},
		{"negative price", CreateItemRequest{Code: "0121100000000", Name: "x", Price: decimal.NewFromInt(-1)}, ErrInvalidPrice},
		{"negative stock", CreateItemRequest{Code: "0121100000000", Name: "x", Stock: &stock}, ErrInvalidStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.req.Validate(), tc.want)
		})
	}
}

func TestCreateItemDefaults(t *testing.T) {
	repo := NewInMemoryRepository()
	item, err := repo.Create(context.Background(), &CreateItemRequest{
		Code:  "0121100000500",
		Name:  "Collar antipulgas",
		Price: decimal.NewFromInt(9000),
	})
	require.NoError(t, err)
	assert.Equal(t, TypeProduct, item.Type)
	assert.True(t, item.TaxRate.Equal(DefaultTaxRate))
	require.NotNil(t, item.Stock)
	assert.Equal(t, 0, *item.Stock)
	assert.False(t, item.Unlimited())
}

func TestServicesHaveUnlimitedStock(t *testing.T) {
	stock := 5
	repo := NewInMemoryRepository()
	item, err := repo.Create(context.Background(), &CreateItemRequest{
		Code:  "0121100000600",
		Name:  "Baño medicado",
		Type:  TypeService,
		Price: decimal.NewFromInt(7000),
		Stock: &stock,
	})
	require.NoError(t, err)
	assert.Nil(t, item.Stock)
	assert.True(t, item.Unlimited())
}

func TestSeededRepository(t *testing.T) {
	repo := NewSeededRepository()
	items, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 5)

	vaccines, err := repo.List(context.Background(), "vacuna")
	require.NoError(t, err)
	assert.Len(t, vaccines, 2)

	consult, err := repo.Get(context.Background(), "seed-1")
	require.NoError(t, err)
	assert.Equal(t, "0121100000000", consult.Code)
	assert.True(t, consult.Price.Equal(decimal.NewFromInt(25000)))
	assert.True(t, consult.Unlimited())
}

func TestPostgresRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM catalog_items WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = NewPostgresRepository(mock).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stock := 3
	created := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "code", "sku", "name", "description", "price", "tax_rate", "type", "stock", "category", "created_at"}).
		AddRow("a", "0121100000100", "", "Vacuna Nobivac DHPPi", "", decimal.NewFromInt(15000), decimal.RequireFromString("0.01"), "product", &stock, "Salud", created)
	mock.ExpectQuery(`SELECT .* FROM catalog_items\s+WHERE name ILIKE \$1`).
		WithArgs("%vacuna%").
		WillReturnRows(rows)

	items, err := NewPostgresRepository(mock).List(context.Background(), "vacuna")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeProduct, items[0].Type)
	assert.Equal(t, 3, *items[0].Stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO catalog_items`).
		WithArgs(pgxmock.AnyArg(), "0121100000700", "", "Cirugía menor", "", decimal.NewFromInt(60000), DefaultTaxRate, "service", pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	item, err := NewPostgresRepository(mock).Create(context.Background(), &CreateItemRequest{
		Code: "0121100000700", Name: "Cirugía menor", Type: TypeService, Price: decimal.NewFromInt(60000),
	})
	require.NoError(t, err)
	assert.Nil(t, item.Stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeSearcher struct {
	codes []gateway.CABYSCode
	err   error
}

func (f fakeSearcher) SearchCABYS(context.Context, string) ([]gateway.CABYSCode, error) {
	return f.codes, f.err
}

func TestHandlerCreateAndGet(t *testing.T) {
	h := NewHandler(NewInMemoryRepository(), fakeSearcher{}, nil)
	r := chi.NewRouter()
	r.Post("/catalog/items", h.CreateItem)
	r.Get("/catalog/items/{itemID}", h.GetItem)

	body, _ := json.Marshal(map[string]any{"code": "0121100000800", "name": "Shampoo", "price": "4500", "stock": 12})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/catalog/items", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var item Item
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/items/"+item.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/items/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreateInvalid(t *testing.T) {
	h := NewHandler(NewInMemoryRepository(), fakeSearcher{}, nil)
	rec := httptest.NewRecorder()
	h.CreateItem(rec, httptest.NewRequest(http.MethodPost, "/catalog/items", bytes.NewReader([]byte(`{"code":"1","name":"x"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSearchCABYS(t *testing.T) {
	h := NewHandler(NewInMemoryRepository(), fakeSearcher{codes: []gateway.CABYSCode{{Code: "0121100000000", Description: "Consulta"}}}, nil)

	rec := httptest.NewRecorder()
	h.SearchCABYS(rec, httptest.NewRequest(http.MethodGet, "/catalog/cabys?q=consulta", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0121100000000")

	rec = httptest.NewRecorder()
	h.SearchCABYS(rec, httptest.NewRequest(http.MethodGet, "/catalog/cabys", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	down := NewHandler(NewInMemoryRepository(), fakeSearcher{err: gateway.ErrUnavailable}, nil)
	rec = httptest.NewRecorder()
	down.SearchCABYS(rec, httptest.NewRequest(http.MethodGet, "/catalog/cabys?q=x", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
