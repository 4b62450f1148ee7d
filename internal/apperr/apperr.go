// Package apperr defines the error taxonomy shared by the order and inventory core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without inspecting messages.
type Kind string

const (
	KindInternal          Kind = "internal"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindUnavailable       Kind = "dependency_unavailable"
	KindForbidden         Kind = "forbidden"
)

// Machine readable codes carried by conflict errors.
const (
	CodeAlreadyPaid     = "already_paid"
	CodeOrderCancelled  = "order_cancelled"
	CodeDuplicateRef    = "duplicate_ref"
	CodeRefExhausted    = "ref_exhausted"
	CodeVersionMismatch = "version_mismatch"
	CodeDuplicateKey    = "duplicate_key"

	CodeIdempotencyInFlight = "idempotency_in_flight"
)

// Shortage describes one line item that cannot be satisfied from stock.
type Shortage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
}

// Shortage reasons.
const (
	ShortageNotFound     = "not_found"
	ShortageInactive     = "inactive"
	ShortageInsufficient = "insufficient"
)

func (s Shortage) String() string {
	switch s.Reason {
	case ShortageNotFound:
		return fmt.Sprintf("Product %s not found", s.ProductID)
	default:
		return fmt.Sprintf("%s - Only %d available, requested %d", s.Name, s.Available, s.Requested)
	}
}

// Error wraps a failure with its kind and, for stock failures, per item detail.
type Error struct {
	Op        string
	Kind      Kind
	Code      string
	Message   string
	Err       error
	Shortages []Shortage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

func Conflict(op, code, format string, args ...any) *Error {
	e := newf(KindConflict, op, format, args...)
	e.Code = code
	return e
}

func Forbidden(op, format string, args ...any) *Error {
	return newf(KindForbidden, op, format, args...)
}

// Unavailable marks err as a failure of an external dependency such as the database.
func Unavailable(op string, err error) *Error {
	return &Error{Op: op, Kind: KindUnavailable, Message: "dependency unavailable", Err: err}
}

// Internal wraps an unexpected error.
func Internal(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Message: "internal error", Err: err}
}

// InsufficientStock reports every line that failed the stock check.
func InsufficientStock(op string, shortages []Shortage) *Error {
	return &Error{
		Op:        op,
		Kind:      KindInsufficientStock,
		Message:   "insufficient stock",
		Shortages: append([]Shortage(nil), shortages...),
	}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ShortagesOf extracts stock shortages from err, if any.
func ShortagesOf(err error) []Shortage {
	var e *Error
	if errors.As(err, &e) {
		return e.Shortages
	}
	return nil
}
