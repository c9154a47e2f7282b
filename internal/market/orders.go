package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safar/croptap/internal/models"
	"github.com/safar/croptap/internal/store"
)

const defaultOrderPageSize = 20

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%s", strings.ToUpper(uuid.NewString()))
}

// CreateOrderFromCart materializes the cart into an order and its lines in
// one serializable transaction. The cart is left untouched.
func (s *Service) CreateOrderFromCart(ctx context.Context, cartID int64, shippingAddress string) (*models.Order, error) {
	return s.checkout(ctx, "create_order", cartID, shippingAddress, false)
}

// PlaceOrder materializes the cart and removes it in the same transaction,
// so a cart is converted into at most one order.
func (s *Service) PlaceOrder(ctx context.Context, cartID int64, shippingAddress string) (*models.Order, error) {
	return s.checkout(ctx, "place_order", cartID, shippingAddress, true)
}

func (s *Service) checkout(ctx context.Context, op string, cartID int64, shippingAddress string, clear bool) (*models.Order, error) {
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return nil, s.fail(op, NewInvalidArgument(ErrMsgShippingAddress))
	}

	var (
		order   *models.Order
		cleared *ClearResult
	)
	err := s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = createOrderTx(ctx, tx, cartID, shippingAddress)
		if err != nil {
			return err
		}
		if clear {
			cleared, err = s.clearCartTx(ctx, tx, cartID, true)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	if s.metrics != nil {
		s.metrics.OrdersPlaced.Inc()
		s.metrics.OrderValue.Add(order.TotalAmount.InexactFloat64())
	}
	s.logger.Info("order created from cart",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("cart_id", cartID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("farmer_id", order.FarmerID),
		zap.Stringer("total_amount", order.TotalAmount),
		zap.Int("lines", len(order.Items)))
	if cleared != nil {
		s.recordClear(cleared, true)
	}

	return order, nil
}

func createOrderTx(ctx context.Context, tx *sql.Tx, cartID int64, shippingAddress string) (*models.Order, error) {
	cart, err := store.LockCart(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	lines, err := store.ListCartItems(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	items, total, err := BuildOrderItems(lines)
	if err != nil {
		return nil, err
	}

	order, err := store.CreateOrder(ctx, tx, store.CreateOrderParams{
		OrderNumber:     generateOrderNumber(),
		BuyerID:         cart.BuyerID,
		FarmerID:        cart.FarmerID,
		TotalAmount:     total,
		ShippingAddress: shippingAddress,
	})
	if err != nil {
		return nil, err
	}

	created, err := store.CreateOrderItems(ctx, tx, order.ID, items)
	if err != nil {
		return nil, err
	}
	order.Items = created

	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get_order", err)
	}
	return order, nil
}

func (s *Service) ListBuyerOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error) {
	if limit < 1 || limit > 100 {
		limit = defaultOrderPageSize
	}

	page, err := store.ListOrdersCursor(ctx, s.db, buyerID, cursor, limit)
	if err != nil {
		return nil, s.fail("list_orders", err)
	}
	return page, nil
}

// UpdateOrderStatus writes status and/or payment status. Any value of the
// enumerations is accepted from any current state.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus, payment models.PaymentStatus) (*models.Order, error) {
	if status == "" && payment == "" {
		return nil, s.fail("update_order_status", NewInvalidArgument(ErrMsgNothingToUpdate))
	}
	if status != "" && !status.Valid() {
		return nil, s.fail("update_order_status", NewInvalidArgument(ErrMsgInvalidStatus))
	}
	if payment != "" && !payment.Valid() {
		return nil, s.fail("update_order_status", NewInvalidArgument(ErrMsgInvalidPayment))
	}

	order, err := store.UpdateOrderStatus(ctx, s.db, id, store.OrderStatusUpdate{
		Status:        status,
		PaymentStatus: payment,
	})
	if err != nil {
		return nil, s.fail("update_order_status", err)
	}

	s.logger.Info("order status updated",
		zap.Int64("order_id", id),
		zap.String("status", string(order.Status)),
		zap.String("payment_status", string(order.PaymentStatus)))
	return order, nil
}

func (s *Service) UpdateDelivery(ctx context.Context, id int64, status models.DeliveryStatus, estimated *time.Time) (*models.Order, error) {
	if !status.Valid() {
		return nil, s.fail("update_delivery", NewInvalidArgument(ErrMsgInvalidDelivery))
	}

	order, err := store.UpdateDelivery(ctx, s.db, id, status, estimated)
	if err != nil {
		return nil, s.fail("update_delivery", err)
	}

	s.logger.Info("order delivery updated",
		zap.Int64("order_id", id),
		zap.String("delivery_status", string(status)))
	return order, nil
}

// DeleteOrder removes an order and its lines. Carts are not restored.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	if err := store.DeleteOrder(ctx, s.db, id); err != nil {
		return s.fail("delete_order", err)
	}

	s.logger.Info("order deleted", zap.Int64("order_id", id))
	return nil
}
