package market

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/croptap/internal/database"
	"github.com/safar/croptap/internal/models"
	"github.com/safar/croptap/internal/store"
)

// AddToCartRequest adds Quantity units of ProductID to the buyer's cart.
// CartID 0 opens a new cart owned by the product's farmer.
type AddToCartRequest struct {
	BuyerID   int64
	ProductID int64
	Quantity  int
	CartID    int64
}

type CartItemRequest struct {
	ProductID int64
	Quantity  int
}

// CartSummary is a cart with its lines and the sum of their frozen totals.
type CartSummary struct {
	models.Cart
	Total decimal.Decimal `json:"total"`
}

type ClearResult struct {
	Message string `json:"message"`
	CartID  int64  `json:"cart_id"`

	removed int64
}

func validateQuantity(qty int) error {
	if qty <= 0 {
		return NewInvalidArgument(ErrMsgQuantityPositive)
	}
	if qty > MaxItemQuantity {
		return NewInvalidArgument(ErrMsgQuantityTooLarge)
	}
	return nil
}

// ResolveFarmer returns the product and the id of the farmer who owns it.
func (s *Service) ResolveFarmer(ctx context.Context, productID int64) (*models.Product, int64, error) {
	product, farmerID, err := resolveFarmer(ctx, s.db, productID, false)
	if err != nil {
		return nil, 0, s.fail("resolve_farmer", err)
	}
	return product, farmerID, nil
}

func resolveFarmer(ctx context.Context, q database.Querier, productID int64, lock bool) (*models.Product, int64, error) {
	var (
		product *models.Product
		err     error
	)
	if tx, ok := q.(*sql.Tx); ok && lock {
		product, err = store.LockProductShared(ctx, tx, productID)
	} else {
		product, err = store.GetProduct(ctx, q, productID)
	}
	if err != nil {
		return nil, 0, err
	}

	if product.FarmerID == 0 {
		return nil, 0, NewInvalidState(ErrMsgInvalidFarmer)
	}

	farmer, err := store.GetUser(ctx, q, product.FarmerID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, 0, &Error{Kind: KindInvalidState, Message: ErrMsgInvalidFarmer, Err: err}
		}
		return nil, 0, err
	}
	if farmer.Role != models.RoleFarmer {
		return nil, 0, NewInvalidState(ErrMsgInvalidFarmer)
	}

	return product, farmer.ID, nil
}

func (s *Service) AddToCart(ctx context.Context, req AddToCartRequest) (*models.Cart, error) {
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, s.fail("add_to_cart", err)
	}

	var cart *models.Cart
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		cart, created, err = s.addToCartTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, s.fail("add_to_cart", err)
	}

	s.recordAdds(cart.ID, req.BuyerID, created, 1)
	return cart, nil
}

// AddItems applies AddToCart for every item in one transaction. The cart
// opened for the first item, if any, receives the rest.
func (s *Service) AddItems(ctx context.Context, buyerID, cartID int64, items []CartItemRequest) (*models.Cart, error) {
	if len(items) == 0 {
		return nil, s.fail("add_items", NewInvalidArgument(ErrMsgNoCartItems))
	}
	for _, item := range items {
		if err := validateQuantity(item.Quantity); err != nil {
			return nil, s.fail("add_items", err)
		}
	}

	var cart *models.Cart
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		currentID := cartID
		created = false
		for _, item := range items {
			c, isNew, err := s.addToCartTx(ctx, tx, AddToCartRequest{
				BuyerID:   buyerID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				CartID:    currentID,
			})
			if err != nil {
				return err
			}
			created = created || isNew
			currentID = c.ID
			cart = c
		}

		lines, err := store.ListCartItems(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		cart.Items = lines
		return nil
	})
	if err != nil {
		return nil, s.fail("add_items", err)
	}

	s.recordAdds(cart.ID, buyerID, created, len(items))
	return cart, nil
}

func (s *Service) addToCartTx(ctx context.Context, tx *sql.Tx, req AddToCartRequest) (*models.Cart, bool, error) {
	product, farmerID, err := resolveFarmer(ctx, tx, req.ProductID, true)
	if err != nil {
		return nil, false, err
	}

	var cart *models.Cart
	created := false
	if req.CartID != 0 {
		cart, err = store.LockCart(ctx, tx, req.CartID)
		if err != nil {
			return nil, false, err
		}
		if cart.BuyerID != req.BuyerID {
			return nil, false, NewInvalidState(ErrMsgCartOtherBuyer)
		}
	} else {
		if _, err := store.GetUser(ctx, tx, req.BuyerID); err != nil {
			if errors.Is(err, database.ErrUserNotFound) {
				return nil, false, &Error{Kind: KindNotFound, Message: ErrMsgBuyerNotFound, Err: err}
			}
			return nil, false, err
		}
		cart, err = store.CreateCart(ctx, tx, req.BuyerID, farmerID)
		if err != nil {
			return nil, false, err
		}
		created = true
	}

	if cart.FarmerID != farmerID {
		s.logger.Debug("farmer mismatch",
			zap.Int64("cart_id", cart.ID),
			zap.Int64("cart_farmer_id", cart.FarmerID),
			zap.Int64("product_farmer_id", farmerID))
		return nil, false, NewInvalidState(ErrMsgFarmerMismatch)
	}

	line, err := store.UpsertCartItem(ctx, tx, cart.ID, product.ID, req.Quantity, product.Price)
	if err != nil {
		return nil, false, err
	}
	if err := store.TouchCart(ctx, tx, cart.ID); err != nil {
		return nil, false, err
	}

	s.logger.Debug("cart line upserted",
		zap.Int64("cart_id", cart.ID),
		zap.Int64("product_id", product.ID),
		zap.Int("quantity", line.Quantity),
		zap.Stringer("line_total", line.LineTotal))

	return cart, created, nil
}

func (s *Service) recordAdds(cartID, buyerID int64, created bool, n int) {
	if s.metrics != nil {
		s.metrics.CartItemsAdded.Add(float64(n))
		if created {
			s.metrics.CartsCreated.Inc()
		}
	}
	s.logger.Info("items added to cart",
		zap.Int64("cart_id", cartID),
		zap.Int64("buyer_id", buyerID),
		zap.Bool("new_cart", created),
		zap.Int("items", n))
}

// CartTotal is the sum of the cart's frozen line totals, the amount checkout
// will charge.
func (s *Service) CartTotal(ctx context.Context, cartID int64) (decimal.Decimal, error) {
	if _, err := store.GetCart(ctx, s.db, cartID); err != nil {
		return decimal.Zero, s.fail("cart_total", err)
	}

	total, err := store.CartLineTotal(ctx, s.db, cartID)
	if err != nil {
		return decimal.Zero, s.fail("cart_total", err)
	}
	return total, nil
}

func (s *Service) GetCart(ctx context.Context, cartID int64) (*CartSummary, error) {
	var summary *CartSummary
	err := database.WithTransaction(ctx, s.db, database.TxOptions{
		IsolationLevel: sql.LevelRepeatableRead,
		ReadOnly:       true,
	}, func(tx *sql.Tx) error {
		cart, err := store.GetCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		lines, err := store.ListCartItems(ctx, tx, cartID)
		if err != nil {
			return err
		}
		cart.Items = lines
		summary = &CartSummary{Cart: *cart, Total: SumLineTotals(lines)}
		return nil
	})
	if err != nil {
		return nil, s.fail("get_cart", err)
	}
	return summary, nil
}

func (s *Service) CartsByBuyer(ctx context.Context, buyerID int64) ([]models.Cart, error) {
	if _, err := store.GetUser(ctx, s.db, buyerID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, s.fail("carts_by_buyer", NewNotFound(ErrMsgBuyerNotFound))
		}
		return nil, s.fail("carts_by_buyer", err)
	}

	carts, err := store.ListCartsByBuyer(ctx, s.db, buyerID)
	if err != nil {
		return nil, s.fail("carts_by_buyer", err)
	}
	return carts, nil
}

// SetItemQuantity replaces the quantity of a line already in the cart. The
// line total is re-frozen at the product's current price.
func (s *Service) SetItemQuantity(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, s.fail("set_item_quantity", err)
	}

	var line *models.CartItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := store.LockCart(ctx, tx, cartID); err != nil {
			return err
		}
		product, err := store.LockProductShared(ctx, tx, productID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				return database.ErrCartItemNotFound
			}
			return err
		}
		line, err = store.SetCartItemQuantity(ctx, tx, cartID, productID, quantity, product.Price)
		if err != nil {
			return err
		}
		return store.TouchCart(ctx, tx, cartID)
	})
	if err != nil {
		return nil, s.fail("set_item_quantity", err)
	}

	s.logger.Info("cart line quantity set",
		zap.Int64("cart_id", cartID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity),
		zap.Stringer("line_total", line.LineTotal))
	return line, nil
}

func (s *Service) RemoveItem(ctx context.Context, cartID, productID int64) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := store.LockCart(ctx, tx, cartID); err != nil {
			return err
		}
		if err := store.DeleteCartItem(ctx, tx, cartID, productID); err != nil {
			return err
		}
		return store.TouchCart(ctx, tx, cartID)
	})
	if err != nil {
		return s.fail("remove_item", err)
	}

	s.logger.Info("item removed from cart", zap.Int64("cart_id", cartID), zap.Int64("product_id", productID))
	return nil
}

// ClearCart deletes every line of the cart and, with removeCart, the cart.
func (s *Service) ClearCart(ctx context.Context, cartID int64, removeCart bool) (*ClearResult, error) {
	var result *ClearResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.clearCartTx(ctx, tx, cartID, removeCart)
		return err
	})
	if err != nil {
		return nil, s.fail("clear_cart", err)
	}

	s.recordClear(result, removeCart)
	return result, nil
}

func (s *Service) clearCartTx(ctx context.Context, tx *sql.Tx, cartID int64, removeCart bool) (*ClearResult, error) {
	if _, err := store.LockCart(ctx, tx, cartID); err != nil {
		return nil, err
	}

	removed, err := store.DeleteCartItems(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	if removeCart {
		if err := store.DeleteCart(ctx, tx, cartID); err != nil {
			return nil, err
		}
	}

	return &ClearResult{Message: "Cart cleared", CartID: cartID, removed: removed}, nil
}

func (s *Service) recordClear(result *ClearResult, removeCart bool) {
	if s.metrics != nil {
		s.metrics.CartsCleared.Inc()
	}
	s.logger.Info("cart cleared",
		zap.Int64("cart_id", result.CartID),
		zap.Int64("lines_removed", result.removed),
		zap.Bool("cart_removed", removeCart))
}
