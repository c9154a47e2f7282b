package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safar/croptap/internal/market"
	"github.com/safar/croptap/internal/metrics"
	"github.com/safar/croptap/internal/models"
)

// fakeMarket embeds the interface so tests only implement what they call.
type fakeMarket struct {
	Marketplace

	pingErr error

	addItems    func(buyerID, cartID int64, items []market.CartItemRequest) (*models.Cart, error)
	placeOrder  func(cartID int64, addr string) (*models.Order, error)
	clearCart   func(cartID int64, remove bool) (*market.ClearResult, error)
	cartTotal   func(cartID int64) (decimal.Decimal, error)
	getProduct  func(id int64) (*models.Product, error)
	updateOrder func(id int64, status models.OrderStatus, payment models.PaymentStatus) (*models.Order, error)
	delivery    func(id int64, status models.DeliveryStatus, eta *time.Time) (*models.Order, error)
	deleteOrder func(id int64) error
	updateUser  func(req market.UpdateUserRequest) (*models.User, error)
	deleteUser  func(id int64) error
	setQuantity func(cartID, productID int64, qty int) (*models.CartItem, error)
}

func (f *fakeMarket) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeMarket) AddItems(ctx context.Context, buyerID, cartID int64, items []market.CartItemRequest) (*models.Cart, error) {
	return f.addItems(buyerID, cartID, items)
}

func (f *fakeMarket) PlaceOrder(ctx context.Context, cartID int64, addr string) (*models.Order, error) {
	return f.placeOrder(cartID, addr)
}

func (f *fakeMarket) ClearCart(ctx context.Context, cartID int64, remove bool) (*market.ClearResult, error) {
	return f.clearCart(cartID, remove)
}

func (f *fakeMarket) CartTotal(ctx context.Context, cartID int64) (decimal.Decimal, error) {
	return f.cartTotal(cartID)
}

func (f *fakeMarket) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return f.getProduct(id)
}

func (f *fakeMarket) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus, payment models.PaymentStatus) (*models.Order, error) {
	return f.updateOrder(id, status, payment)
}

func (f *fakeMarket) UpdateDelivery(ctx context.Context, id int64, status models.DeliveryStatus, eta *time.Time) (*models.Order, error) {
	return f.delivery(id, status, eta)
}

func (f *fakeMarket) DeleteOrder(ctx context.Context, id int64) error {
	return f.deleteOrder(id)
}

func (f *fakeMarket) UpdateUser(ctx context.Context, req market.UpdateUserRequest) (*models.User, error) {
	return f.updateUser(req)
}

func (f *fakeMarket) DeleteUser(ctx context.Context, id int64) error {
	return f.deleteUser(id)
}

func (f *fakeMarket) SetItemQuantity(ctx context.Context, cartID, productID int64, qty int) (*models.CartItem, error) {
	return f.setQuantity(cartID, productID, qty)
}

func newTestServer(t *testing.T, m Marketplace) (http.Handler, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	return NewServer(m, zap.NewNop(), mt, reg).Handler(), mt
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind market.Kind
		want int
	}{
		{market.KindNotFound, http.StatusNotFound},
		{market.KindInvalidState, http.StatusConflict},
		{market.KindInvalidArgument, http.StatusBadRequest},
		{market.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusForKind(tt.kind))
		})
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, &fakeMarket{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	h, _ = newTestServer(t, &fakeMarket{pingErr: errors.New("connection refused")})
	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	h, _ := newTestServer(t, &fakeMarket{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestAddToCart(t *testing.T) {
	var gotItems []market.CartItemRequest
	fm := &fakeMarket{
		addItems: func(buyerID, cartID int64, items []market.CartItemRequest) (*models.Cart, error) {
			gotItems = items
			return &models.Cart{ID: 9, BuyerID: buyerID, FarmerID: 4}, nil
		},
	}
	h, mt := newTestServer(t, fm)

	rec := do(t, h, http.MethodPost, "/carts",
		`{"buyer_id": 2, "cart_items": [{"product_id": 7, "quantity": 3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []market.CartItemRequest{{ProductID: 7, Quantity: 3}}, gotItems)

	var cart models.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Equal(t, int64(9), cart.ID)
	assert.Equal(t, int64(4), cart.FarmerID)

	assert.Equal(t, float64(1), testutil.ToFloat64(mt.HTTPRequests.WithLabelValues("POST", "POST /carts", "201")))
}

func TestAddToCartExistingCartIsOK(t *testing.T) {
	fm := &fakeMarket{
		addItems: func(buyerID, cartID int64, items []market.CartItemRequest) (*models.Cart, error) {
			return &models.Cart{ID: cartID, BuyerID: buyerID}, nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodPost, "/carts",
		`{"buyer_id": 2, "cart_id": 5, "cart_items": [{"product_id": 7, "quantity": 1}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddToCartErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		want    int
		message string
	}{
		{
			name:    "farmer mismatch",
			body:    `{"buyer_id": 2, "cart_id": 5, "cart_items": [{"product_id": 7, "quantity": 1}]}`,
			err:     market.NewInvalidState(market.ErrMsgFarmerMismatch),
			want:    http.StatusConflict,
			message: market.ErrMsgFarmerMismatch,
		},
		{
			name:    "unknown product",
			body:    `{"buyer_id": 2, "cart_items": [{"product_id": 70, "quantity": 1}]}`,
			err:     market.NewNotFound(market.ErrMsgProductNotFound),
			want:    http.StatusNotFound,
			message: market.ErrMsgProductNotFound,
		},
		{
			name:    "non-positive quantity",
			body:    `{"buyer_id": 2, "cart_items": [{"product_id": 7, "quantity": 0}]}`,
			err:     market.NewInvalidArgument(market.ErrMsgQuantityPositive),
			want:    http.StatusBadRequest,
			message: market.ErrMsgQuantityPositive,
		},
		{
			name:    "internal errors are hidden",
			body:    `{"buyer_id": 2, "cart_items": [{"product_id": 7, "quantity": 1}]}`,
			err:     errors.New("pq: connection reset"),
			want:    http.StatusInternalServerError,
			message: "internal server error",
		},
		{
			name:    "missing buyer",
			body:    `{"cart_items": [{"product_id": 7, "quantity": 1}]}`,
			want:    http.StatusBadRequest,
			message: "buyer_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeMarket{
				addItems: func(int64, int64, []market.CartItemRequest) (*models.Cart, error) {
					return nil, tt.err
				},
			}
			h, _ := newTestServer(t, fm)
			rec := do(t, h, http.MethodPost, "/carts", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.message, errorBody(t, rec))
		})
	}
}

func TestMalformedBody(t *testing.T) {
	h, _ := newTestServer(t, &fakeMarket{})

	rec := do(t, h, http.MethodPost, "/orders", `{"cart_id": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body is empty", errorBody(t, rec))
}

func TestPlaceOrder(t *testing.T) {
	fm := &fakeMarket{
		placeOrder: func(cartID int64, addr string) (*models.Order, error) {
			if addr == "" {
				return nil, market.NewInvalidArgument(market.ErrMsgShippingAddress)
			}
			return &models.Order{
				ID:              1,
				OrderNumber:     "ORD-1",
				TotalAmount:     decimal.RequireFromString("35.00"),
				Status:          models.OrderStatusPending,
				PaymentStatus:   models.PaymentStatusUnpaid,
				DeliveryStatus:  models.DeliveryStatusPending,
				ShippingAddress: addr,
			}, nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodPost, "/orders", `{"cart_id": 3, "shipping_address": "12 Farm Rd"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(35)))
	assert.Equal(t, models.OrderStatusPending, order.Status)

	rec = do(t, h, http.MethodPost, "/orders", `{"cart_id": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, market.ErrMsgShippingAddress, errorBody(t, rec))

	rec = do(t, h, http.MethodPost, "/orders", `{"shipping_address": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	fm := &fakeMarket{
		placeOrder: func(int64, string) (*models.Order, error) {
			return nil, market.NewInvalidState(market.ErrMsgCartEmpty)
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodPost, "/orders", `{"cart_id": 3, "shipping_address": "x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, market.ErrMsgCartEmpty, errorBody(t, rec))
}

func TestClearCart(t *testing.T) {
	var gotRemove bool
	fm := &fakeMarket{
		clearCart: func(cartID int64, remove bool) (*market.ClearResult, error) {
			gotRemove = remove
			return &market.ClearResult{Message: "Cart cleared", CartID: cartID}, nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodDelete, "/carts/8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gotRemove)
	assert.JSONEq(t, `{"message": "Cart cleared", "cart_id": 8}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/carts/8?remove=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotRemove)
}

func TestCartTotal(t *testing.T) {
	fm := &fakeMarket{
		cartTotal: func(cartID int64) (decimal.Decimal, error) {
			if cartID != 4 {
				return decimal.Zero, market.NewNotFound(market.ErrMsgCartNotFound)
			}
			return decimal.RequireFromString("35.00"), nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodGet, "/carts/4/total", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cart_id": 4, "total": "35"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/carts/5/total", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidPathID(t *testing.T) {
	h, _ := newTestServer(t, &fakeMarket{})

	for _, target := range []string{"/products/abc", "/products/-1", "/orders/0", "/carts/x"} {
		rec := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetProductNotFound(t *testing.T) {
	fm := &fakeMarket{
		getProduct: func(int64) (*models.Product, error) {
			return nil, market.NewNotFound(market.ErrMsgProductNotFound)
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodGet, "/products/12", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, market.ErrMsgProductNotFound, errorBody(t, rec))
}

func TestUpdateOrderStatus(t *testing.T) {
	fm := &fakeMarket{
		updateOrder: func(id int64, status models.OrderStatus, payment models.PaymentStatus) (*models.Order, error) {
			return &models.Order{ID: id, Status: status, PaymentStatus: payment}, nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodPut, "/orders/3/status", `{"status": "paid", "payment_status": "paid"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
}

func TestUpdateDelivery(t *testing.T) {
	var gotETA *time.Time
	fm := &fakeMarket{
		delivery: func(id int64, status models.DeliveryStatus, eta *time.Time) (*models.Order, error) {
			gotETA = eta
			return &models.Order{ID: id, DeliveryStatus: status, EstimatedDelivery: eta}, nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodPut, "/orders/3/delivery",
		`{"delivery_status": "in_transit", "estimated_delivery": "2026-11-01T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, gotETA)
	assert.Equal(t, 2026, gotETA.Year())
}

func TestListOrdersRequiresBuyer(t *testing.T) {
	h, _ := newTestServer(t, &fakeMarket{})

	rec := do(t, h, http.MethodGet, "/orders", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/carts", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h, mt := newTestServer(t, &fakeMarket{})

	rec := do(t, h, http.MethodPatch, "/orders/3", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(mt.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, &fakeMarket{})

	do(t, h, http.MethodGet, "/healthz", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "croptap_http_requests_total")
}

func TestUpdateUser(t *testing.T) {
	var got market.UpdateUserRequest
	fm := &fakeMarket{
		updateUser: func(req market.UpdateUserRequest) (*models.User, error) {
			got = req
			if req.Email != nil && *req.Email == "taken@example.com" {
				return nil, market.NewInvalidState(market.ErrMsgEmailInUse)
			}
			return &models.User{ID: req.ID, Name: *req.Name, Role: models.RoleBuyer}, nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodPut, "/users/6", `{"name": "Ada"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(6), got.ID)
	require.NotNil(t, got.Name)
	assert.Equal(t, "Ada", *got.Name)
	assert.Nil(t, got.Email)
	assert.Nil(t, got.Password)

	rec = do(t, h, http.MethodPut, "/users/6", `{"name": "Ada", "email": "taken@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, market.ErrMsgEmailInUse, errorBody(t, rec))

	rec = do(t, h, http.MethodPut, "/users/zero", `{"name": "Ada"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUser(t *testing.T) {
	fm := &fakeMarket{
		deleteUser: func(id int64) error {
			switch id {
			case 2:
				return market.NewInvalidState(market.ErrMsgUserHasOrders)
			case 3:
				return market.NewNotFound(market.ErrMsgUserNotFound)
			}
			return nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodDelete, "/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "User deleted"}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/users/2", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, market.ErrMsgUserHasOrders, errorBody(t, rec))

	rec = do(t, h, http.MethodDelete, "/users/3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetCartItemQuantity(t *testing.T) {
	fm := &fakeMarket{
		setQuantity: func(cartID, productID int64, qty int) (*models.CartItem, error) {
			if qty > market.MaxItemQuantity {
				return nil, market.NewInvalidArgument(market.ErrMsgQuantityTooLarge)
			}
			return &models.CartItem{
				CartID:    cartID,
				ProductID: productID,
				Quantity:  qty,
				LineTotal: decimal.NewFromInt(int64(qty) * 2),
			}, nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodPut, "/carts/5/items/7", `{"quantity": 4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var line models.CartItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &line))
	assert.Equal(t, int64(5), line.CartID)
	assert.Equal(t, int64(7), line.ProductID)
	assert.Equal(t, 4, line.Quantity)
	assert.True(t, line.LineTotal.Equal(decimal.NewFromInt(8)))

	rec = do(t, h, http.MethodPut, "/carts/5/items/7", `{"quantity": 2147483647}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, market.ErrMsgQuantityTooLarge, errorBody(t, rec))

	rec = do(t, h, http.MethodPut, "/carts/5/items/x", `{"quantity": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOrder(t *testing.T) {
	fm := &fakeMarket{
		deleteOrder: func(id int64) error {
			if id != 3 {
				return market.NewNotFound(market.ErrMsgOrderNotFound)
			}
			return nil
		},
	}
	h, _ := newTestServer(t, fm)

	rec := do(t, h, http.MethodDelete, "/orders/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "Order deleted"}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/orders/4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, market.ErrMsgOrderNotFound, errorBody(t, rec))
}
