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

type CreateProductParams struct {
	FarmerID    int64
	Name        string
	Description string
	Price       decimal.Decimal
	Unit        string
	Quantity    int
	ImageURL    string
}

// UpdateProductParams carries the full editable state of a product. Version
// must match the stored row for the update to apply.
type UpdateProductParams struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Unit        string
	Quantity    int
	ImageURL    string
	Version     int
}

const productColumns = `id, COALESCE(farmer_id, 0), name, description, price, unit, quantity, image_url, created_at, updated_at, version`

func scanProduct(row interface{ Scan(...any) error }, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.FarmerID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Unit,
		&product.Quantity,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func CreateProduct(ctx context.Context, q database.Querier, p CreateProductParams) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (farmer_id, name, description, price, unit, quantity, image_url, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query,
		p.FarmerID, p.Name, p.Description, p.Price, p.Unit, p.Quantity, p.ImageURL), product)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrUserNotFound
		}
		if database.IsOutOfRange(err) {
			return nil, database.OutOfRangeError(err)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.Querier, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProductShared takes a FOR SHARE lock so the price read while adding to a
// cart cannot change before the line is written.
func LockProductShared(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR SHARE`

	if err := scanProduct(tx.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	return product, nil
}

// UpdateProductOptimistic applies p only if the row still has p.Version.
func UpdateProductOptimistic(ctx context.Context, q database.Querier, p UpdateProductParams) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, unit = $4, quantity = $5, image_url = $6,
		    version = version + 1, updated_at = NOW()
		WHERE id = $7 AND version = $8
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query,
		p.Name, p.Description, p.Price, p.Unit, p.Quantity, p.ImageURL, p.ID, p.Version), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := GetProduct(ctx, q, p.ID); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrOptimisticLockFailed
		}
		if database.IsOutOfRange(err) {
			return nil, database.OutOfRangeError(err)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

func DeleteProduct(ctx context.Context, q database.Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// ListProducts pages through products, newest first. farmerID 0 lists all.
func ListProducts(ctx context.Context, q database.Querier, farmerID int64, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE ($1::bigint = 0 OR farmer_id = $1)`,
		farmerID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE ($1::bigint = 0 OR farmer_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, farmerID, pageSize, pageOffset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}
