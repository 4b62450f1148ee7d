package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryFrames      Category = "frames"
	CategoryLenses      Category = "lenses"
	CategoryEyedrop     Category = "eyedrop"
	CategoryAccessories Category = "accessories"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFrames, CategoryLenses, CategoryEyedrop, CategoryAccessories:
		return true
	}
	return false
}

// Product is a catalog entry with its stock counters. AvailableQuantity and
// InStock are written only through Ledger.
type Product struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Category          Category        `json:"category"`
	Price             decimal.Decimal `json:"price"`
	Description       string          `json:"description"`
	AvailableQuantity int             `json:"available_quantity"`
	InStock           bool            `json:"in_stock"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Level is a stock write produced by the ledger. Its fields are unexported so
// that no other package can fabricate one.
type Level struct {
	productID   string
	quantity    int
	inStock     bool
	prevVersion int64
	at          time.Time
}

func (l Level) ProductID() string { return l.productID }
func (l Level) Quantity() int     { return l.quantity }
func (l Level) InStock() bool     { return l.inStock }

// PrevVersion is the version the row must still carry for the write to apply.
func (l Level) PrevVersion() int64   { return l.prevVersion }
func (l Level) NextVersion() int64   { return l.prevVersion + 1 }
func (l Level) UpdatedAt() time.Time { return l.at }

type Reason string

const (
	ReasonInitial        Reason = "initial"
	ReasonOrderPaid      Reason = "order_paid"
	ReasonOrderCancelled Reason = "order_cancelled"
	ReasonAdjustment     Reason = "adjustment"
	ReasonActivation     Reason = "activation"
)

// Movement is the audit row appended for every ledger write.
type Movement struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	OrderRef      string    `json:"order_ref,omitempty"`
	Delta         int       `json:"delta"`
	Reason        Reason    `json:"reason"`
	Note          string    `json:"note,omitempty"`
	QuantityAfter int       `json:"quantity_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// Line is one product/quantity pair of a multi item ledger call.
type Line struct {
	ProductID string
	Title     string
	Qty       int
}

// Availability is the read-only answer of CheckAvailability.
type Availability struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Requested int             `json:"requested"`
	Current   int             `json:"current"`
	Available bool            `json:"available"`
	Reason    string          `json:"reason,omitempty"`
}

// Change reports the effect of a ledger write on one product.
type Change struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	OrderRef  string `json:"order_ref,omitempty"`
	Reason    Reason `json:"reason"`
	Previous  int    `json:"previous"`
	Current   int    `json:"current"`
	Delta     int    `json:"delta"`
	InStock   bool   `json:"in_stock"`
}

// Reader is the read side of product persistence.
type Reader interface {
	FindProductByID(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// Tx is a transaction able to lock and rewrite product stock rows.
type Tx interface {
	Reader
	// LockProducts locks the rows for ids in ascending id order. Unknown ids
	// are absent from the result.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	// WriteLevel applies l when the row still has l.PrevVersion, and fails
	// with a conflict otherwise.
	WriteLevel(ctx context.Context, l Level) error
	AppendMovement(ctx context.Context, m Movement) error
	// InsertProduct stores p with the quantity and stock flag taken from l.
	InsertProduct(ctx context.Context, p Product, l Level) error
}

// Store runs stock transactions.
type Store interface {
	Reader
	WithStockTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
