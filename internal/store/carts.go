package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/safar/croptap/internal/database"
	"github.com/safar/croptap/internal/models"
)

const cartColumns = `id, buyer_id, farmer_id, created_at, updated_at`

func scanCart(row interface{ Scan(...any) error }, cart *models.Cart) error {
	return row.Scan(
		&cart.ID,
		&cart.BuyerID,
		&cart.FarmerID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
}

func CreateCart(ctx context.Context, q database.Querier, buyerID, farmerID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	query := `
		INSERT INTO carts (buyer_id, farmer_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING ` + cartColumns

	if err := scanCart(q.QueryRowContext(ctx, query, buyerID, farmerID), cart); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("create cart: %w", err)
	}

	return cart, nil
}

func GetCart(ctx context.Context, q database.Querier, id int64) (*models.Cart, error) {
	cart := &models.Cart{}

	query := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1`

	if err := scanCart(q.QueryRowContext(ctx, query, id), cart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

// LockCart reads the cart FOR UPDATE. Every sequence that mutates a cart's
// lines or removes the cart takes this lock first, so adds, checkout and
// clearing on the same cart serialize.
func LockCart(ctx context.Context, tx *sql.Tx, id int64) (*models.Cart, error) {
	cart := &models.Cart{}

	query := `SELECT ` + cartColumns + ` FROM carts WHERE id = $1 FOR UPDATE`

	if err := scanCart(tx.QueryRowContext(ctx, query, id), cart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		if database.IsLockNotAvailable(err) {
			return nil, database.LockTimeoutError(err)
		}
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	return cart, nil
}

func TouchCart(ctx context.Context, q database.Querier, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func ListCartsByBuyer(ctx context.Context, q database.Querier, buyerID int64) ([]models.Cart, error) {
	query := `
		SELECT ` + cartColumns + `
		FROM carts
		WHERE buyer_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list carts: %w", err)
	}
	defer rows.Close()

	carts := []models.Cart{}
	for rows.Next() {
		var cart models.Cart
		if err := scanCart(rows, &cart); err != nil {
			return nil, fmt.Errorf("scan cart: %w", err)
		}
		carts = append(carts, cart)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return carts, nil
}

func DeleteCart(ctx context.Context, q database.Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartNotFound
	}

	return nil
}

// UpsertCartItem adds quantity to the (cart, product) line, creating it if
// needed, and re-snapshots line_total as unitPrice × resulting quantity.
func UpsertCartItem(ctx context.Context, q database.Querier, cartID, productID int64, quantity int, unitPrice decimal.Decimal) (*models.CartItem, error) {
	item := &models.CartItem{}

	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, line_total, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric * $3, NOW(), NOW())
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity   = cart_items.quantity + EXCLUDED.quantity,
		    line_total = $4::numeric * (cart_items.quantity + EXCLUDED.quantity),
		    updated_at = NOW()
		RETURNING id, cart_id, product_id, quantity, line_total, created_at, updated_at`

	err := q.QueryRowContext(ctx, query, cartID, productID, quantity, unitPrice).Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.Quantity,
		&item.LineTotal,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if database.IsOutOfRange(err) {
			return nil, database.OutOfRangeError(err)
		}
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}

	return item, nil
}

// SetCartItemQuantity replaces the quantity of an existing line and
// re-snapshots line_total as unitPrice × quantity.
func SetCartItemQuantity(ctx context.Context, q database.Querier, cartID, productID int64, quantity int, unitPrice decimal.Decimal) (*models.CartItem, error) {
	item := &models.CartItem{}

	query := `
		UPDATE cart_items
		SET quantity   = $3,
		    line_total = $4::numeric * $3,
		    updated_at = NOW()
		WHERE cart_id = $1 AND product_id = $2
		RETURNING id, cart_id, product_id, quantity, line_total, created_at, updated_at`

	err := q.QueryRowContext(ctx, query, cartID, productID, quantity, unitPrice).Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.Quantity,
		&item.LineTotal,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		if database.IsOutOfRange(err) {
			return nil, database.OutOfRangeError(err)
		}
		return nil, fmt.Errorf("set cart item quantity: %w", err)
	}

	return item, nil
}

// ListCartItems returns the lines of a cart joined to their products, in
// insertion order.
func ListCartItems(ctx context.Context, q database.Querier, cartID int64) ([]models.CartItem, error) {
	query := `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.line_total, ci.created_at, ci.updated_at,
		       COALESCE(p.farmer_id, 0)
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`

	rows, err := q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.LineTotal,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.ProductFarmerID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func CartLineTotal(ctx context.Context, q database.Querier, cartID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(line_total), 0) FROM cart_items WHERE cart_id = $1`,
		cartID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum cart items: %w", err)
	}
	return total, nil
}

func DeleteCartItems(ctx context.Context, q database.Querier, cartID int64) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("delete cart items: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func DeleteCartItem(ctx context.Context, q database.Querier, cartID, productID int64) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}
