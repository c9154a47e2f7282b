package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/croptap/internal/database"
	"github.com/safar/croptap/internal/models"
)

type CreateOrderParams struct {
	OrderNumber     string
	BuyerID         int64
	FarmerID        int64
	TotalAmount     decimal.Decimal
	ShippingMethod  string
	ShippingAddress string
}

type OrderItemParams struct {
	ProductID int64
	FarmerID  int64
	Quantity  int
	PriceEach decimal.Decimal
	Subtotal  decimal.Decimal
}

// OrderStatusUpdate leaves a field unchanged when it is empty.
type OrderStatusUpdate struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
}

const orderColumns = `id, order_number, buyer_id, farmer_id, total_amount, status, payment_status,
	shipping_method, shipping_address, delivery_status, estimated_delivery, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	var estimated sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.BuyerID,
		&order.FarmerID,
		&order.TotalAmount,
		&order.Status,
		&order.PaymentStatus,
		&order.ShippingMethod,
		&order.ShippingAddress,
		&order.DeliveryStatus,
		&estimated,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}
	if estimated.Valid {
		t := estimated.Time
		order.EstimatedDelivery = &t
	}
	return nil
}

func CreateOrder(ctx context.Context, q database.Querier, p CreateOrderParams) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (order_number, buyer_id, farmer_id, total_amount, status, payment_status,
		                    shipping_method, shipping_address, delivery_status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
		RETURNING ` + orderColumns

	err := scanOrder(q.QueryRowContext(ctx, query,
		p.OrderNumber,
		p.BuyerID,
		p.FarmerID,
		p.TotalAmount,
		models.OrderStatusPending,
		models.PaymentStatusUnpaid,
		p.ShippingMethod,
		p.ShippingAddress,
		models.DeliveryStatusPending,
	), order)
	if err != nil {
		if database.IsOutOfRange(err) {
			return nil, database.OutOfRangeError(err)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

// CreateOrderItems inserts all lines of an order in one statement.
func CreateOrderItems(ctx context.Context, q database.Querier, orderID int64, items []OrderItemParams) ([]models.OrderItem, error) {
	if len(items) == 0 {
		return []models.OrderItem{}, nil
	}

	const cols = 6
	var sb strings.Builder
	args := make([]any, 0, len(items)*cols)

	sb.WriteString(`INSERT INTO order_items (order_id, product_id, farmer_id, quantity, price_each, subtotal, created_at) VALUES `)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, NOW())", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, orderID, item.ProductID, item.FarmerID, item.Quantity, item.PriceEach, item.Subtotal)
	}
	sb.WriteString(` RETURNING id, order_id, product_id, farmer_id, quantity, price_each, subtotal, created_at`)

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		if database.IsOutOfRange(err) {
			return nil, database.OutOfRangeError(err)
		}
		return nil, fmt.Errorf("create order items: %w", err)
	}
	defer rows.Close()

	created, err := scanOrderItems(rows)
	if err != nil {
		if database.IsOutOfRange(err) {
			return nil, database.OutOfRangeError(err)
		}
		return nil, err
	}

	return created, nil
}

func scanOrderItems(rows *sql.Rows) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.FarmerID,
			&item.Quantity,
			&item.PriceEach,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := ListOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func ListOrderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, farmer_id, quantity, price_each, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	return scanOrderItems(rows)
}

func ListOrdersCursor(ctx context.Context, q database.Querier, buyerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, buyerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func UpdateOrderStatus(ctx context.Context, q database.Querier, id int64, u OrderStatusUpdate) (*models.Order, error) {
	order := &models.Order{}

	query := `
		UPDATE orders
		SET status         = COALESCE(NULLIF($1, ''), status),
		    payment_status = COALESCE(NULLIF($2, ''), payment_status),
		    version        = version + 1,
		    updated_at     = NOW()
		WHERE id = $3
		RETURNING ` + orderColumns

	err := scanOrder(q.QueryRowContext(ctx, query, string(u.Status), string(u.PaymentStatus), id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}

func UpdateDelivery(ctx context.Context, q database.Querier, id int64, status models.DeliveryStatus, estimated *time.Time) (*models.Order, error) {
	order := &models.Order{}

	query := `
		UPDATE orders
		SET delivery_status    = $1,
		    estimated_delivery = $2,
		    version            = version + 1,
		    updated_at         = NOW()
		WHERE id = $3
		RETURNING ` + orderColumns

	var eta sql.NullTime
	if estimated != nil {
		eta = sql.NullTime{Time: *estimated, Valid: true}
	}

	err := scanOrder(q.QueryRowContext(ctx, query, status, eta, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("update delivery: %w", err)
	}

	return order, nil
}

// DeleteOrder removes an order and, by cascade, its lines.
func DeleteOrder(ctx context.Context, q database.Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}
