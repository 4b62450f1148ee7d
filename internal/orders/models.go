package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-orders/internal/inventory"
)

type Customer struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
}

// LineItem is a snapshot of the product taken when the order was created.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
}

func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Qty)))
}

type Order struct {
	ID             string          `json:"id"`
	Ref            string          `json:"ref"`
	Customer       Customer        `json:"customer"`
	Items          []LineItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	Status         Status          `json:"status"`
	StockDeducted  bool            `json:"stock_deducted"`
	ContactMessage string          `json:"contact_message"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ComputeSubtotal sums unit price times quantity over items.
func ComputeSubtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Amount())
	}
	return sum
}

// ComputeTotal is max(0, subtotal + shippingFee - discount).
func ComputeTotal(subtotal, shippingFee, discount decimal.Decimal) decimal.Decimal {
	t := subtotal.Add(shippingFee).Sub(discount)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}

// SetCharges replaces the fee and discount and recomputes the total.
func (o *Order) SetCharges(shippingFee, discount decimal.Decimal) {
	o.ShippingFee = shippingFee
	o.Discount = discount
	o.Total = ComputeTotal(o.Subtotal, shippingFee, discount)
}

func (o Order) lines() []inventory.Line {
	out := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, inventory.Line{ProductID: it.ProductID, Title: it.Title, Qty: it.Qty})
	}
	return out
}
