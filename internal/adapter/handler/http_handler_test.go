package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pizzahub/internal/adapter/storage"
	"github.com/rl1809/pizzahub/internal/core/domain"
	"github.com/rl1809/pizzahub/internal/core/service"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testStack struct {
	ingredients *storage.MemoryIngredientStore
	orders      *service.OrderService
	admin       *service.IngredientService
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	ingredients := storage.NewMemoryIngredientStore()
	ctx := context.Background()
	for _, ing := range []domain.Ingredient{
		{Type: domain.IngredientBase, ID: "thin-crust", Name: "Thin Crust", Price: decimal.NewFromInt(100), StockQuantity: 5, LowStockThreshold: 1},
		{Type: domain.IngredientSauce, ID: "tomato", Name: "Tomato", Price: decimal.NewFromInt(20), StockQuantity: 5, LowStockThreshold: 1},
		{Type: domain.IngredientSauce, ID: "pesto", Name: "Pesto", Price: decimal.NewFromInt(30), StockQuantity: 0, LowStockThreshold: 1},
		{Type: domain.IngredientCheese, ID: "mozzarella", Name: "Mozzarella", Price: decimal.NewFromInt(40), StockQuantity: 5, LowStockThreshold: 1},
	} {
		require.NoError(t, ingredients.Save(ctx, ing))
	}

	return testStack{
		ingredients: ingredients,
		orders:      service.NewOrderService(ingredients, storage.NewMemoryOrderStore(), nil, service.WithLogger(quietLogger)),
		admin:       service.NewIngredientService(ingredients, nil, quietLogger),
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, testStack) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	stack := newTestStack(t)
	return NewHTTPHandler(stack.orders, stack.admin, quietLogger).Router(), stack
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const margheritaBody = `{
	"customer_ref": "cust-1",
	"base": {"id": "thin-crust", "quantity": 1},
	"sauce": {"id": "tomato", "quantity": 1},
	"cheese": {"id": "mozzarella", "quantity": 1, "portion": "extra"},
	"quantity": 1,
	"item_price": "250.00",
	"tax": 12.5
}`

func TestHTTP_PlaceOrder(t *testing.T) {
	r, stack := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/orders", margheritaBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order domain.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, domain.OrderStatusReceived, order.Status)
	assert.Equal(t, domain.PortionExtra, order.Configuration.Cheese.Portion)
	assert.True(t, order.Pricing.TotalAmount.Equal(decimal.RequireFromString("312.5")))

	base, err := stack.ingredients.Get(context.Background(), domain.IngredientKey{Type: domain.IngredientBase, ID: "thin-crust"})
	require.NoError(t, err)
	assert.Equal(t, 4, base.StockQuantity)

	w = doJSON(r, http.MethodGet, "/api/orders/"+order.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTP_PlaceOrderErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		ingredient string
	}{
		{
			name:       "malformed json",
			body:       `{"customer_ref":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "missing cheese",
			body:       `{"customer_ref":"c","base":{"id":"thin-crust","quantity":1},"sauce":{"id":"tomato","quantity":1},"quantity":1}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "wrapping base quantity",
			body:       strings.Replace(margheritaBody, `"thin-crust", "quantity": 1`, `"thin-crust", "quantity": 4611686018427387905`, 1),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "too many pizzas",
			body:       strings.Replace(margheritaBody, `"quantity": 1,`+"\n", `"quantity": 51,`+"\n", 1),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "out of stock sauce",
			body:       strings.Replace(margheritaBody, `"tomato"`, `"pesto"`, 1),
			wantStatus: http.StatusConflict,
			wantError:  "insufficient stock",
			ingredient: "sauce/pesto",
		},
		{
			name:       "unknown base",
			body:       strings.Replace(margheritaBody, `"thin-crust"`, `"deep-dish"`, 1),
			wantStatus: http.StatusNotFound,
			wantError:  "ingredient not found",
			ingredient: "base/deep-dish",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, stack := newTestRouter(t)

			w := doJSON(r, http.MethodPost, "/api/orders", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.ingredient, resp.Ingredient)

			base, err := stack.ingredients.Get(context.Background(), domain.IngredientKey{Type: domain.IngredientBase, ID: "thin-crust"})
			require.NoError(t, err)
			assert.Equal(t, 5, base.StockQuantity, "failed placement must leave stock untouched")
		})
	}
}

func TestHTTP_UpdateStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/orders", margheritaBody)
	require.Equal(t, http.StatusCreated, w.Code)
	var order domain.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))

	w = doJSON(r, http.MethodPatch, "/api/orders/"+order.ID+"/status", `{"status":"delivered","actor":"driver"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, domain.OrderStatusDelivered, order.Status)
	assert.NotNil(t, order.ActualDeliveryTime)
	assert.Len(t, order.StatusHistory, 2)

	w = doJSON(r, http.MethodPatch, "/api/orders/"+order.ID+"/status", `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPatch, "/api/orders/missing/status", `{"status":"ready"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/api/orders?status=delivered", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHTTP_IngredientAdmin(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/ingredients",
		`{"type":"vegetable","id":"onion","name":"Onion","price":"15","stock_quantity":40}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.Ingredient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, domain.DefaultLowStockThreshold, created.LowStockThreshold)
	assert.True(t, created.Available)

	w = doJSON(r, http.MethodPost, "/api/ingredients", `{"type":"dessert","id":"x","name":"X"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// a second create must not reset live stock
	w = doJSON(r, http.MethodPost, "/api/ingredients",
		`{"type":"sauce","id":"tomato","name":"Tomato","price":"20","stock_quantity":500}`)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	var conflict ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, "ingredient already exists", conflict.Error)

	w = doJSON(r, http.MethodGet, "/api/ingredients/sauce/tomato", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tomato domain.Ingredient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tomato))
	assert.Equal(t, 5, tomato.StockQuantity)

	w = doJSON(r, http.MethodPatch, "/api/ingredients/vegetable/onion/stock", `{"change":-45}`)
	require.Equal(t, http.StatusOK, w.Code)
	var adjusted domain.Ingredient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &adjusted))
	assert.Equal(t, 0, adjusted.StockQuantity)

	w = doJSON(r, http.MethodGet, "/api/ingredients?type=sauce", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sauces []domain.Ingredient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sauces))
	assert.Len(t, sauces, 2)

	w = doJSON(r, http.MethodGet, "/api/ingredients/vegetable/onion", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/ingredients/vegetable/onion", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodGet, "/api/ingredients/vegetable/onion", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTP_Health(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
