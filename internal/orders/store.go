package orders

import (
	"context"

	"github.com/ariefcatur/storefront-orders/internal/inventory"
)

type ListFilter struct {
	Status Status
	Limit  int
}

// Store is the order persistence used by Service. Implementations must
// report missing rows as apperr NotFound.
type Store interface {
	inventory.Reader
	FindOrderByID(ctx context.Context, id string) (Order, error)
	FindOrderByRef(ctx context.Context, ref string) (Order, error)
	RefExists(ctx context.Context, ref string) (bool, error)
	// ListOrders returns the newest orders first.
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	// WithTx runs fn in one transaction, committed only when fn returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx extends the stock transaction with order rows, so that a status change
// and its ledger side effect commit together.
type Tx interface {
	inventory.Tx
	// LockOrder loads the order and holds its row until the transaction ends.
	LockOrder(ctx context.Context, id string) (Order, error)
	// InsertOrder fails with a conflict carrying apperr.CodeDuplicateRef
	// when the ref is taken.
	InsertOrder(ctx context.Context, o Order) error
	// SaveOrder writes o when the stored version still equals o.Version and
	// stores o.Version+1.
	SaveOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id string) error
}
