package orders

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	"github.com/ariefcatur/storefront-orders/internal/metrics"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CreateOrderInput struct {
	Items       []ItemInput     `json:"items"`
	Customer    Customer        `json:"customer"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Discount    decimal.Decimal `json:"discount"`
}

// normalize trims the customer fields and lowercases the email.
func (in *CreateOrderInput) normalize() {
	in.Customer.FullName = strings.TrimSpace(in.Customer.FullName)
	in.Customer.Phone = strings.TrimSpace(in.Customer.Phone)
	in.Customer.Email = strings.ToLower(strings.TrimSpace(in.Customer.Email))
	for i := range in.Items {
		in.Items[i].ProductID = strings.TrimSpace(in.Items[i].ProductID)
	}
}

func (in CreateOrderInput) validate() error {
	const op = "orders.Create"
	if len(in.Items) == 0 {
		return apperr.Validation(op, "order must have at least one item")
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return apperr.Validation(op, "item %d: product id is required", i+1)
		}
		if it.Qty < 1 {
			return apperr.Validation(op, "item %d: quantity must be at least 1", i+1)
		}
	}
	switch {
	case in.Customer.FullName == "":
		return apperr.Validation(op, "customer name is required")
	case in.Customer.Phone == "":
		return apperr.Validation(op, "customer phone is required")
	case in.Customer.Email != "" && !emailPattern.MatchString(in.Customer.Email):
		return apperr.Validation(op, "invalid email address")
	case in.ShippingFee.IsNegative():
		return apperr.Validation(op, "shipping fee cannot be negative")
	case in.Discount.IsNegative():
		return apperr.Validation(op, "discount cannot be negative")
	}
	return nil
}

// buildItems checks every requested line against current stock and
// snapshots the catalog title and price. All shortages are reported together.
// The check holds nothing; stock is only taken when the order is paid.
func buildItems(ctx context.Context, ledger *inventory.Ledger, r inventory.Reader, in []ItemInput) ([]LineItem, error) {
	items := make([]LineItem, 0, len(in))
	requested := make(map[string]int, len(in))
	var shortages []apperr.Shortage
	for _, it := range in {
		requested[it.ProductID] += it.Qty
		av, err := ledger.CheckAvailability(ctx, r, it.ProductID, requested[it.ProductID])
		if err != nil {
			return nil, err
		}
		if !av.Available {
			shortages = append(shortages, apperr.Shortage{
				ProductID: it.ProductID,
				Name:      av.Name,
				Requested: requested[it.ProductID],
				Available: av.Current,
				Reason:    av.Reason,
			})
			continue
		}
		if av.UnitPrice.IsNegative() {
			return nil, apperr.Validation("orders.Create", "product %s has a negative price", av.Name)
		}
		items = append(items, LineItem{
			ProductID: it.ProductID,
			Title:     av.Name,
			UnitPrice: av.UnitPrice,
			Qty:       it.Qty,
		})
	}
	if len(shortages) > 0 {
		metrics.StockRejections.Inc()
		return nil, apperr.InsufficientStock("orders.Create", shortages)
	}
	return items, nil
}
