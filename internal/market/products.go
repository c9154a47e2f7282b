package market

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/croptap/internal/database"
	"github.com/safar/croptap/internal/models"
	"github.com/safar/croptap/internal/store"
)

type CreateProductRequest struct {
	FarmerID    int64
	Name        string
	Description string
	Price       decimal.Decimal
	Unit        string
	Quantity    int
	ImageURL    string
}

// UpdateProductRequest changes only the non-nil fields. A non-zero Version
// must match the stored product.
type UpdateProductRequest struct {
	ID          int64
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Unit        *string
	Quantity    *int
	ImageURL    *string
	Version     int
}

func validateProduct(name string, price decimal.Decimal, quantity int) error {
	if strings.TrimSpace(name) == "" {
		return NewInvalidArgument(ErrMsgProductName)
	}
	if price.IsNegative() {
		return NewInvalidArgument(ErrMsgPriceNegative)
	}
	if price.Round(2).GreaterThan(MaxPrice) {
		return NewInvalidArgument(ErrMsgPriceTooLarge)
	}
	if quantity < 0 {
		return NewInvalidArgument(ErrMsgStockNegative)
	}
	if quantity > MaxStock {
		return NewInvalidArgument(ErrMsgStockTooLarge)
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*models.Product, error) {
	if err := validateProduct(req.Name, req.Price, req.Quantity); err != nil {
		return nil, s.fail("create_product", err)
	}

	farmer, err := store.GetUser(ctx, s.db, req.FarmerID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, s.fail("create_product", NewNotFound(ErrMsgFarmerNotFound))
		}
		return nil, s.fail("create_product", err)
	}
	if farmer.Role != models.RoleFarmer {
		return nil, s.fail("create_product", NewInvalidState(ErrMsgNotAFarmer))
	}

	product, err := store.CreateProduct(ctx, s.db, store.CreateProductParams{
		FarmerID:    farmer.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price.Round(2),
		Unit:        req.Unit,
		Quantity:    req.Quantity,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		return nil, s.fail("create_product", err)
	}

	s.logger.Info("product created", zap.Int64("product_id", product.ID), zap.Int64("farmer_id", product.FarmerID))
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := store.GetProduct(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get_product", err)
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, farmerID int64, page, pageSize int) (*store.OffsetPage, error) {
	result, err := store.ListProducts(ctx, s.db, farmerID, page, pageSize)
	if err != nil {
		return nil, s.fail("list_products", err)
	}
	return result, nil
}

// UpdateProduct never touches cart lines: prices already frozen in carts
// stay as they were.
func (s *Service) UpdateProduct(ctx context.Context, req UpdateProductRequest) (*models.Product, error) {
	current, err := store.GetProduct(ctx, s.db, req.ID)
	if err != nil {
		return nil, s.fail("update_product", err)
	}

	p := store.UpdateProductParams{
		ID:          current.ID,
		Name:        current.Name,
		Description: current.Description,
		Price:       current.Price,
		Unit:        current.Unit,
		Quantity:    current.Quantity,
		ImageURL:    current.ImageURL,
		Version:     current.Version,
	}
	if req.Version != 0 {
		p.Version = req.Version
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = req.Price.Round(2)
	}
	if req.Unit != nil {
		p.Unit = *req.Unit
	}
	if req.Quantity != nil {
		p.Quantity = *req.Quantity
	}
	if req.ImageURL != nil {
		p.ImageURL = *req.ImageURL
	}

	if err := validateProduct(p.Name, p.Price, p.Quantity); err != nil {
		return nil, s.fail("update_product", err)
	}

	product, err := store.UpdateProductOptimistic(ctx, s.db, p)
	if err != nil {
		return nil, s.fail("update_product", err)
	}

	s.logger.Info("product updated", zap.Int64("product_id", product.ID), zap.Int("version", product.Version))
	return product, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := store.DeleteProduct(ctx, s.db, id); err != nil {
		return s.fail("delete_product", err)
	}

	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}
