package allocation

import (
	"allocation-service/internal/entity"
	"github.com/shopspring/decimal"
)

// StockKey identifies a stock figure: incoming quantities depend on the lookahead.
type StockKey struct {
	ProductID int
	Days      int
}

// StockSnapshot holds the stock levels fetched before an evaluation.
// Products missing from the snapshot count as having nothing available.
type StockSnapshot map[StockKey]entity.StockLevel

func (s StockSnapshot) Level(productID, days int) entity.StockLevel {
	if level, ok := s[StockKey{ProductID: productID, Days: days}]; ok {
		return level
	}
	return entity.StockLevel{ProductID: productID, OnHand: decimal.Zero, Incoming: decimal.Zero}
}

// Available is on-hand plus incoming within the lookahead.
func (s StockSnapshot) Available(productID, days int) decimal.Decimal {
	level := s.Level(productID, days)
	return level.OnHand.Add(level.Incoming)
}

var hundred = decimal.NewFromInt(100)

// fillRate returns the percentage of the ordered quantity that stock can cover.
// Lines of the same product share its stock. ok is false when nothing is ordered.
func fillRate(lines []entity.OrderLine, stock StockSnapshot, days int) (rate decimal.Decimal, ok bool) {
	ordered := make(map[int]decimal.Decimal)
	var products []int
	for _, line := range lines {
		if _, seen := ordered[line.Product.ID]; !seen {
			products = append(products, line.Product.ID)
			ordered[line.Product.ID] = decimal.Zero
		}
		ordered[line.Product.ID] = ordered[line.Product.ID].Add(line.Quantity)
	}

	totalOrdered := decimal.Zero
	totalAllocatable := decimal.Zero
	for _, productID := range products {
		qty := ordered[productID]
		if !qty.IsPositive() {
			continue
		}
		totalOrdered = totalOrdered.Add(qty)
		totalAllocatable = totalAllocatable.Add(decimal.Min(qty, decimal.Max(stock.Available(productID, days), decimal.Zero)))
	}

	if totalOrdered.IsZero() {
		return decimal.Zero, false
	}
	return totalAllocatable.Div(totalOrdered).Mul(hundred), true
}
