package market

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/safar/croptap/internal/database"
	"github.com/safar/croptap/internal/store"
)

type Kind int

// Upper bounds on caller-supplied amounts. Prices fit NUMERIC(10,2) and
// stock fits an INTEGER column.
const (
	MaxItemQuantity = 1_000_000
	MaxStock        = math.MaxInt32
)

var MaxPrice = decimal.RequireFromString("99999999.99")

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidState
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// Messages returned to API callers.
const (
	ErrMsgProductNotFound    = "Product not found"
	ErrMsgInvalidFarmer      = "Invalid farmer associated with product"
	ErrMsgCartNotFound       = "Cart not found"
	ErrMsgCartEmpty          = "Cart is empty"
	ErrMsgCartBusy           = "Cart is being modified, retry"
	ErrMsgCartOtherBuyer     = "Cart belongs to another buyer"
	ErrMsgFarmerMismatch     = "All items in cart must belong to the same farmer"
	ErrMsgItemNotInCart      = "Item not in cart"
	ErrMsgQuantityPositive   = "Quantity must be positive"
	ErrMsgQuantityTooLarge   = "Quantity is too large"
	ErrMsgNoCartItems        = "cart_items must not be empty"
	ErrMsgShippingAddress    = "shipping_address is required"
	ErrMsgBuyerNotFound      = "Buyer not found"
	ErrMsgUserNotFound       = "User not found"
	ErrMsgFarmerNotFound     = "Farmer not found"
	ErrMsgNotAFarmer         = "Only farmers can own products"
	ErrMsgUserFieldsRequired = "name, email, password, role are required"
	ErrMsgInvalidEmail       = "email is not a valid address"
	ErrMsgInvalidRole        = "role must be one of farmer, buyer, admin"
	ErrMsgEmailInUse         = "Email already in use"
	ErrMsgProductName        = "name is required"
	ErrMsgPriceNegative      = "price must not be negative"
	ErrMsgPriceTooLarge      = "price is too large"
	ErrMsgStockNegative      = "quantity must not be negative"
	ErrMsgStockTooLarge      = "quantity is too large"
	ErrMsgValueOutOfRange    = "Value out of range"
	ErrMsgUserHasOrders      = "User has orders and cannot be deleted"
	ErrMsgProductConflict    = "Product was modified concurrently; reload and retry"
	ErrMsgOrderNotFound      = "Order not found"
	ErrMsgInvalidStatus      = "status is not a valid order status"
	ErrMsgInvalidPayment     = "payment_status is not a valid payment status"
	ErrMsgInvalidDelivery    = "delivery_status is not a valid delivery status"
	ErrMsgNothingToUpdate    = "status or payment_status is required"
	ErrMsgInvalidCursor      = "cursor is invalid"
)

// Error is a business-rule failure. Err, when set, is the store error that
// triggered it.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewInvalidState(msg string) *Error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

func NewInvalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

// KindOf reports the Kind of err, KindInternal for anything that is not an
// *Error.
func KindOf(err error) Kind {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.Kind
	}
	return KindInternal
}

// translate maps store sentinels onto business errors. Errors it does not
// recognise are returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr
	}

	wrap := func(kind Kind, msg string) error {
		return &Error{Kind: kind, Message: msg, Err: err}
	}

	switch {
	case errors.Is(err, database.ErrProductNotFound):
		return wrap(KindNotFound, ErrMsgProductNotFound)
	case errors.Is(err, database.ErrCartNotFound):
		return wrap(KindNotFound, ErrMsgCartNotFound)
	case errors.Is(err, database.ErrCartItemNotFound):
		return wrap(KindNotFound, ErrMsgItemNotInCart)
	case errors.Is(err, database.ErrOrderNotFound):
		return wrap(KindNotFound, ErrMsgOrderNotFound)
	case errors.Is(err, database.ErrUserNotFound):
		return wrap(KindNotFound, ErrMsgUserNotFound)
	case errors.Is(err, database.ErrDuplicateEmail):
		return wrap(KindInvalidState, ErrMsgEmailInUse)
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return wrap(KindInvalidState, ErrMsgProductConflict)
	case errors.Is(err, database.ErrLockTimeout):
		return wrap(KindInvalidState, ErrMsgCartBusy)
	case errors.Is(err, database.ErrUserHasOrders):
		return wrap(KindInvalidState, ErrMsgUserHasOrders)
	case errors.Is(err, database.ErrValueOutOfRange):
		return wrap(KindInvalidArgument, ErrMsgValueOutOfRange)
	case errors.Is(err, store.ErrInvalidCursor):
		return wrap(KindInvalidArgument, ErrMsgInvalidCursor)
	}

	return err
}
