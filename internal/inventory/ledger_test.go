package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	"github.com/ariefcatur/storefront-orders/internal/memstore"
)

type fixture struct {
	store  *memstore.Store
	ledger *inventory.Ledger
}

func newFixture() fixture {
	clock := func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return fixture{
		store:  memstore.New(),
		ledger: inventory.NewLedger(inventory.LedgerDeps{Clock: clock}),
	}
}

func (f fixture) product(t *testing.T, code string, qty int) inventory.Product {
	t.Helper()
	var p inventory.Product
	require.NoError(t, f.store.WithStockTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		var err error
		p, err = f.ledger.Register(ctx, tx, inventory.Product{
			Code: code, Name: "Lens " + code, Category: inventory.CategoryLenses, Price: decimal.NewFromInt(500),
		}, qty)
		return err
	}))
	return p
}

func (f fixture) get(t *testing.T, id string) inventory.Product {
	t.Helper()
	p, err := f.store.FindProductByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f fixture) stockTx(fn func(ctx context.Context, tx inventory.Tx) error) error {
	return f.store.WithStockTx(context.Background(), fn)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture()
	p := f.product(t, "L1", 3)
	empty := f.product(t, "L2", 0)
	ctx := context.Background()

	av, err := f.ledger.CheckAvailability(ctx, f.store, p.ID, 3)
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Equal(t, 3, av.Current)
	assert.Equal(t, "Lens L1", av.Name)

	av, err = f.ledger.CheckAvailability(ctx, f.store, p.ID, 4)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, apperr.ShortageInsufficient, av.Reason)

	av, err = f.ledger.CheckAvailability(ctx, f.store, empty.ID, 1)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, apperr.ShortageInactive, av.Reason)

	av, err = f.ledger.CheckAvailability(ctx, f.store, "missing", 1)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, apperr.ShortageNotFound, av.Reason)
}

func TestDeductAllAppliesEveryLine(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 5)
	b := f.product(t, "B", 2)

	var changes []inventory.Change
	err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		var err error
		changes, err = f.ledger.DeductAll(ctx, tx, "GLS-20250301-AAAA", []inventory.Line{
			{ProductID: a.ID, Qty: 3},
			{ProductID: b.ID, Qty: 2},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, 5, changes[0].Previous)
	assert.Equal(t, 2, changes[0].Current)
	assert.Equal(t, -3, changes[0].Delta)
	assert.False(t, changes[1].InStock)

	assert.Equal(t, 2, f.get(t, a.ID).AvailableQuantity)
	assert.True(t, f.get(t, a.ID).InStock)
	assert.Equal(t, 0, f.get(t, b.ID).AvailableQuantity)
	assert.False(t, f.get(t, b.ID).InStock)

	moves := f.store.Movements(b.ID)
	require.Len(t, moves, 2)
	assert.Equal(t, inventory.ReasonOrderPaid, moves[1].Reason)
	assert.Equal(t, "GLS-20250301-AAAA", moves[1].OrderRef)
	assert.Equal(t, 0, moves[1].QuantityAfter)
}

func TestDeductAllIsAllOrNothing(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 5)
	b := f.product(t, "B", 1)

	err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.DeductAll(ctx, tx, "GLS-20250301-AAAA", []inventory.Line{
			{ProductID: a.ID, Qty: 2},
			{ProductID: b.ID, Qty: 4},
			{ProductID: "ghost", Title: "Ghost", Qty: 1},
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))

	shortages := apperr.ShortagesOf(err)
	require.Len(t, shortages, 2)
	assert.Equal(t, apperr.Shortage{ProductID: b.ID, Name: "Lens B", Requested: 4, Available: 1, Reason: apperr.ShortageInsufficient}, shortages[0])
	assert.Equal(t, apperr.ShortageNotFound, shortages[1].Reason)
	assert.Equal(t, "Lens B - Only 1 available, requested 4", shortages[0].String())

	assert.Equal(t, 5, f.get(t, a.ID).AvailableQuantity)
	assert.Equal(t, 1, f.get(t, b.ID).AvailableQuantity)
}

func TestDeductAllUsesRunningBalance(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 5)

	err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.DeductAll(ctx, tx, "ref", []inventory.Line{
			{ProductID: a.ID, Qty: 3},
			{ProductID: a.ID, Qty: 3},
		})
		return err
	})
	require.Error(t, err)
	s := apperr.ShortagesOf(err)
	require.Len(t, s, 1)
	assert.Equal(t, 2, s[0].Available)
	assert.Equal(t, 5, f.get(t, a.ID).AvailableQuantity)
}

func TestDeductSingle(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 2)

	err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.Deduct(ctx, tx, "ref", "ghost", 1)
		return err
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		c, err := f.ledger.Deduct(ctx, tx, "ref", a.ID, 2)
		assert.Equal(t, 0, c.Current)
		return err
	})
	require.NoError(t, err)

	err = f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.Deduct(ctx, tx, "ref", a.ID, 1)
		return err
	})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))
}

func TestRestoreReenablesSale(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 4)

	require.NoError(t, f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.SetActive(ctx, tx, a.ID, false)
		return err
	}))
	assert.False(t, f.get(t, a.ID).InStock)

	require.NoError(t, f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		changes, err := f.ledger.RestoreAll(ctx, tx, "ref", []inventory.Line{
			{ProductID: a.ID, Qty: 2},
			{ProductID: "deleted", Qty: 1},
		})
		assert.Len(t, changes, 1)
		return err
	}))
	got := f.get(t, a.ID)
	assert.Equal(t, 6, got.AvailableQuantity)
	assert.True(t, got.InStock)
}

func TestAdjust(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 1)

	err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.Adjust(ctx, tx, a.ID, -2, "")
		return err
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.Adjust(ctx, tx, a.ID, 0, "")
		return err
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.Adjust(ctx, tx, a.ID, -1, "damaged")
		return err
	}))
	assert.False(t, f.get(t, a.ID).InStock)

	require.NoError(t, f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.Adjust(ctx, tx, a.ID, 10, "restock")
		return err
	}))
	got := f.get(t, a.ID)
	assert.Equal(t, 10, got.AvailableQuantity)
	assert.True(t, got.InStock)
	assert.Equal(t, int64(3), got.Version)
}

func TestSetActiveKeepsEmptyProductOffSale(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 0)
	require.NoError(t, f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		c, err := f.ledger.SetActive(ctx, tx, a.ID, true)
		assert.False(t, c.InStock)
		return err
	}))
	assert.False(t, f.get(t, a.ID).InStock)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture()
	cases := map[string]struct {
		p   inventory.Product
		qty int
	}{
		"missing name":     {inventory.Product{Code: "X", Category: inventory.CategoryFrames}, 1},
		"missing code":     {inventory.Product{Name: "X", Category: inventory.CategoryFrames}, 1},
		"bad category":     {inventory.Product{Name: "X", Code: "X", Category: "hats"}, 1},
		"negative price":   {inventory.Product{Name: "X", Code: "X", Category: inventory.CategoryFrames, Price: decimal.NewFromInt(-1)}, 1},
		"negative opening": {inventory.Product{Name: "X", Code: "X", Category: inventory.CategoryFrames}, -1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
				_, err := f.ledger.Register(ctx, tx, tc.p, tc.qty)
				return err
			})
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	f.product(t, "DUP", 1)
	err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.Register(ctx, tx, inventory.Product{Code: "dup", Name: "Again", Category: inventory.CategoryFrames}, 1)
		return err
	})
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicateKey))
}

func TestLinesValidated(t *testing.T) {
	f := newFixture()
	err := f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.DeductAll(ctx, tx, "ref", nil)
		return err
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = f.stockTx(func(ctx context.Context, tx inventory.Tx) error {
		_, err := f.ledger.RestoreAll(ctx, tx, "ref", []inventory.Line{{ProductID: "x", Qty: 0}})
		return err
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
