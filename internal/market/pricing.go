package market

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/safar/croptap/internal/models"
	"github.com/safar/croptap/internal/store"
)

// Prices are frozen when a line is added or incremented. Cart totals and
// checkout both read the frozen line totals, never the live product price.

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// PriceEach derives the per-unit price of an order line from its frozen
// subtotal, rounded to cents. A zero quantity yields zero.
func PriceEach(subtotal decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return subtotal.Div(decimal.NewFromInt(int64(quantity))).Round(2)
}

func SumLineTotals(lines []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// BuildOrderItems derives one order line per cart line and the order total.
// A line without an owning farmer, a unit price or a subtotal makes the whole
// cart unorderable.
func BuildOrderItems(lines []models.CartItem) ([]store.OrderItemParams, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, NewInvalidState(ErrMsgCartEmpty)
	}

	items := make([]store.OrderItemParams, 0, len(lines))
	for _, line := range lines {
		priceEach := PriceEach(line.LineTotal, line.Quantity)

		if line.ProductFarmerID == 0 || priceEach.IsZero() || line.LineTotal.IsZero() {
			return nil, decimal.Zero, NewInvalidState(
				fmt.Sprintf("Missing required fields for product_id=%d", line.ProductID))
		}

		items = append(items, store.OrderItemParams{
			ProductID: line.ProductID,
			FarmerID:  line.ProductFarmerID,
			Quantity:  line.Quantity,
			PriceEach: priceEach,
			Subtotal:  line.LineTotal,
		})
	}

	return items, SumLineTotals(lines), nil
}
