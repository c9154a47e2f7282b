// Package api exposes the marketplace over JSON/HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/safar/croptap/internal/market"
	"github.com/safar/croptap/internal/metrics"
	"github.com/safar/croptap/internal/models"
	"github.com/safar/croptap/internal/store"

	"github.com/shopspring/decimal"
)

// Marketplace is the set of operations the handlers need. *market.Service
// implements it.
type Marketplace interface {
	Ping(ctx context.Context) error

	RegisterUser(ctx context.Context, req market.RegisterUserRequest) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	UpdateUser(ctx context.Context, req market.UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, req market.CreateProductRequest) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, farmerID int64, page, pageSize int) (*store.OffsetPage, error)
	UpdateProduct(ctx context.Context, req market.UpdateProductRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	AddItems(ctx context.Context, buyerID, cartID int64, items []market.CartItemRequest) (*models.Cart, error)
	GetCart(ctx context.Context, cartID int64) (*market.CartSummary, error)
	CartTotal(ctx context.Context, cartID int64) (decimal.Decimal, error)
	CartsByBuyer(ctx context.Context, buyerID int64) ([]models.Cart, error)
	SetItemQuantity(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, cartID, productID int64) error
	ClearCart(ctx context.Context, cartID int64, removeCart bool) (*market.ClearResult, error)

	PlaceOrder(ctx context.Context, cartID int64, shippingAddress string) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus, payment models.PaymentStatus) (*models.Order, error)
	UpdateDelivery(ctx context.Context, id int64, status models.DeliveryStatus, estimated *time.Time) (*models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

var _ Marketplace = (*market.Service)(nil)

type Server struct {
	market  Marketplace
	logger  *zap.Logger
	metrics *metrics.Metrics
	gather  prometheus.Gatherer
}

func NewServer(m Marketplace, logger *zap.Logger, mt *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		market:  m,
		logger:  logger.Named("http"),
		metrics: mt,
		gather:  gatherer,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gather != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /users", s.handleCreateUser)
	mux.HandleFunc("GET /users", s.handleListUsers)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("PUT /users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /users/{id}", s.handleDeleteUser)

	mux.HandleFunc("POST /products", s.handleCreateProduct)
	mux.HandleFunc("GET /products", s.handleListProducts)
	mux.HandleFunc("GET /products/{id}", s.handleGetProduct)
	mux.HandleFunc("PUT /products/{id}", s.handleUpdateProduct)
	mux.HandleFunc("DELETE /products/{id}", s.handleDeleteProduct)

	mux.HandleFunc("POST /carts", s.handleAddToCart)
	mux.HandleFunc("GET /carts", s.handleCartsByBuyer)
	mux.HandleFunc("GET /carts/{id}", s.handleGetCart)
	mux.HandleFunc("GET /carts/{id}/total", s.handleCartTotal)
	mux.HandleFunc("DELETE /carts/{id}", s.handleClearCart)
	mux.HandleFunc("PUT /carts/{id}/items/{product_id}", s.handleSetCartItemQuantity)
	mux.HandleFunc("DELETE /carts/{id}/items/{product_id}", s.handleRemoveCartItem)

	mux.HandleFunc("POST /orders", s.handlePlaceOrder)
	mux.HandleFunc("GET /orders", s.handleListOrders)
	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)
	mux.HandleFunc("PUT /orders/{id}/status", s.handleUpdateOrderStatus)
	mux.HandleFunc("PUT /orders/{id}/delivery", s.handleUpdateDelivery)
	mux.HandleFunc("DELETE /orders/{id}", s.handleDeleteOrder)

	return s.instrument(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.market.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
