package entity

import (
	"github.com/shopspring/decimal"
	"time"
)

// Reservation holds confirmed quantity for an order line under a rule.
type Reservation struct {
	ID        string          `json:"id"`
	OrderID   int             `json:"order_id"`
	RuleID    int             `json:"rule_id"`
	ProductID int             `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Mode      ReservationMode `json:"mode"`
	CreatedAt time.Time       `json:"created_at"`
}

// StockLevel is what the inventory service reports for a product.
type StockLevel struct {
	ProductID int             `json:"product_id"`
	OnHand    decimal.Decimal `json:"on_hand"`
	Incoming  decimal.Decimal `json:"incoming"`
}
