package orders

import (
	"strings"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", apperr.Validation("orders.ParseStatus",
			"invalid status %q, must be one of: pending, paid, shipped, delivered, cancelled", s)
	}
	return st, nil
}

// effect is the stock side effect of a status change.
type effect int

const (
	effectNone effect = iota
	effectDeduct
	effectRestore
)

// planTransition decides whether moving o to `to` is allowed and which
// ledger operation must run before the status is written. No state is
// terminal; only entering paid and leaving paid for cancelled touch stock.
func planTransition(o Order, to Status) (effect, error) {
	const op = "orders.transition"
	if !to.Valid() {
		return effectNone, apperr.Validation(op, "invalid status %q", to)
	}
	switch {
	case to == StatusPaid && o.Status == StatusPaid:
		return effectNone, apperr.Conflict(op, apperr.CodeAlreadyPaid, "order %s is already paid", o.Ref)
	case to == StatusPaid && o.Status == StatusCancelled:
		return effectNone, apperr.Conflict(op, apperr.CodeOrderCancelled, "order %s is cancelled and cannot be paid", o.Ref)
	case to == StatusPaid && !o.StockDeducted:
		return effectDeduct, nil
	case to == StatusCancelled && o.Status == StatusPaid && o.StockDeducted:
		return effectRestore, nil
	}
	return effectNone, nil
}
