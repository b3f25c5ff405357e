package entity

import "github.com/shopspring/decimal"

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusSent      OrderStatus = "sent"
	OrderStatusSale      OrderStatus = "sale"
	OrderStatusCancelled OrderStatus = "cancel"
)

// AllocationState is derived from the rules that apply to an order.
type AllocationState string

const (
	AllocationPending AllocationState = "pending"
	AllocationReady   AllocationState = "ready"
)

type Order struct {
	ID                int             `json:"id"`
	CompanyID         int             `json:"company_id"`
	Customer          Customer        `json:"customer"`
	Lines             []OrderLine     `json:"lines"`
	Status            OrderStatus     `json:"status"` // e.g., "draft", "sale", "cancel"
	AllocationState   AllocationState `json:"allocation_state"`
	AllocationMessage string          `json:"allocation_message"`
	IdempotentKey     string          `json:"idempotent_key"`
}

type OrderLine struct {
	Product  Product         `json:"product"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Editable reports whether the order is still a quotation.
func (o *Order) Editable() bool {
	return o.Status == "" || o.Status == OrderStatusDraft || o.Status == OrderStatusSent
}

// TemplateIDs returns the distinct templates on the order in first-seen order.
func (o *Order) TemplateIDs() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, line := range o.Lines {
		if seen[line.Product.TemplateID] {
			continue
		}
		seen[line.Product.TemplateID] = true
		ids = append(ids, line.Product.TemplateID)
	}
	return ids
}

// LinesForTemplate returns the order lines whose product belongs to the template.
func (o *Order) LinesForTemplate(templateID int) []OrderLine {
	var lines []OrderLine
	for _, line := range o.Lines {
		if line.Product.TemplateID == templateID {
			lines = append(lines, line)
		}
	}
	return lines
}

/*
Mysql Table

CREATE TABLE orders (
	id INT PRIMARY KEY,
	company_id INT NOT NULL,
	customer_id INT NOT NULL,
	status VARCHAR(20) NOT NULL,
	allocation_state VARCHAR(20) NOT NULL,
	allocation_message TEXT NOT NULL,
	idempotent_key VARCHAR(255) UNIQUE NOT NULL
);

CREATE TABLE order_lines (
	id INT AUTO_INCREMENT PRIMARY KEY,
	order_id INT NOT NULL REFERENCES orders(id),
	product_id INT NOT NULL,
	quantity DECIMAL(16,4) NOT NULL
);

*/
