// Package inventory is the stock ledger: the only code allowed to change a
// product's available quantity and in-stock flag.
package inventory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/metrics"
)

type LedgerDeps struct {
	Clock       func() time.Time
	IDGenerator func() string
	Logger      *zap.Logger
}

type Ledger struct {
	clock func() time.Time
	newID func() string
	log   *zap.Logger
}

func NewLedger(deps LedgerDeps) *Ledger {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		clock: func() time.Time { return clock().UTC() },
		newID: newID,
		log:   log.Named("ledger"),
	}
}

// CheckAvailability never fails for business reasons: an unknown, inactive
// or short product yields Available=false. Only store errors are returned.
func (l *Ledger) CheckAvailability(ctx context.Context, r Reader, productID string, qty int) (Availability, error) {
	out := Availability{ProductID: productID, Requested: qty}
	if strings.TrimSpace(productID) == "" {
		out.Reason = apperr.ShortageNotFound
		return out, nil
	}
	p, err := r.FindProductByID(ctx, productID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			out.Reason = apperr.ShortageNotFound
			return out, nil
		}
		return out, err
	}
	out.Name = p.Name
	out.UnitPrice = p.Price
	out.Current = p.AvailableQuantity
	switch {
	case !p.InStock:
		out.Reason = apperr.ShortageInactive
	case qty < 1 || p.AvailableQuantity < qty:
		out.Reason = apperr.ShortageInsufficient
	default:
		out.Available = true
	}
	return out, nil
}

// Deduct removes qty units of one product.
func (l *Ledger) Deduct(ctx context.Context, tx Tx, orderRef, productID string, qty int) (Change, error) {
	changes, err := l.DeductAll(ctx, tx, orderRef, []Line{{ProductID: productID, Qty: qty}})
	if err != nil {
		if s := apperr.ShortagesOf(err); len(s) == 1 && s[0].Reason == apperr.ShortageNotFound {
			return Change{}, apperr.NotFound("inventory.Deduct", "product %s not found", productID)
		}
		return Change{}, err
	}
	return changes[0], nil
}

// DeductAll removes stock for every line or for none of them. All rows are
// locked first, lines are evaluated in order against running balances and
// every shortage is collected before anything is written.
func (l *Ledger) DeductAll(ctx context.Context, tx Tx, orderRef string, lines []Line) ([]Change, error) {
	const op = "inventory.DeductAll"
	if err := validateLines(op, lines); err != nil {
		return nil, err
	}
	locked, err := tx.LockProducts(ctx, lineIDs(lines))
	if err != nil {
		return nil, err
	}

	balance := make(map[string]int, len(locked))
	for id, p := range locked {
		balance[id] = p.AvailableQuantity
	}
	var shortages []apperr.Shortage
	for _, ln := range lines {
		p, ok := locked[ln.ProductID]
		if !ok {
			shortages = append(shortages, apperr.Shortage{
				ProductID: ln.ProductID, Name: ln.Title, Requested: ln.Qty, Reason: apperr.ShortageNotFound,
			})
			continue
		}
		cur := balance[ln.ProductID]
		if !p.InStock || cur < ln.Qty {
			reason := apperr.ShortageInsufficient
			if !p.InStock {
				reason = apperr.ShortageInactive
			}
			shortages = append(shortages, apperr.Shortage{
				ProductID: p.ID, Name: p.Name, Requested: ln.Qty, Available: cur, Reason: reason,
			})
			continue
		}
		balance[ln.ProductID] = cur - ln.Qty
	}
	if len(shortages) > 0 {
		metrics.StockRejections.Inc()
		l.log.Info("deduction rejected",
			zap.String("order_ref", orderRef),
			zap.Int("shortages", len(shortages)))
		return nil, apperr.InsufficientStock(op, shortages)
	}

	return l.apply(ctx, tx, orderRef, ReasonOrderPaid, locked, lines, -1)
}

// Restore adds qty units back to one product.
func (l *Ledger) Restore(ctx context.Context, tx Tx, orderRef, productID string, qty int) (Change, error) {
	changes, err := l.RestoreAll(ctx, tx, orderRef, []Line{{ProductID: productID, Qty: qty}})
	if err != nil {
		return Change{}, err
	}
	if len(changes) == 0 {
		return Change{}, apperr.NotFound("inventory.Restore", "product %s not found", productID)
	}
	return changes[0], nil
}

// RestoreAll credits every line back and re-enables sale of the product.
// Products deleted since the deduction are skipped. Calling it twice for the
// same order credits twice; callers must guarantee at-most-once use.
func (l *Ledger) RestoreAll(ctx context.Context, tx Tx, orderRef string, lines []Line) ([]Change, error) {
	const op = "inventory.RestoreAll"
	if err := validateLines(op, lines); err != nil {
		return nil, err
	}
	locked, err := tx.LockProducts(ctx, lineIDs(lines))
	if err != nil {
		return nil, err
	}
	kept := lines[:0:0]
	for _, ln := range lines {
		if _, ok := locked[ln.ProductID]; !ok {
			l.log.Warn("restore skipped, product missing",
				zap.String("order_ref", orderRef),
				zap.String("product_id", ln.ProductID),
				zap.Int("qty", ln.Qty))
			continue
		}
		kept = append(kept, ln)
	}
	return l.apply(ctx, tx, orderRef, ReasonOrderCancelled, locked, kept, +1)
}

// apply writes the new levels and one movement per line. sign is -1 for
// deductions and +1 for restores.
func (l *Ledger) apply(ctx context.Context, tx Tx, orderRef string, reason Reason, locked map[string]Product, lines []Line, sign int) ([]Change, error) {
	now := l.clock()
	running := make(map[string]int, len(locked))
	order := make([]string, 0, len(locked))
	changes := make([]Change, 0, len(lines))

	for _, ln := range lines {
		p := locked[ln.ProductID]
		prev, seen := running[p.ID]
		if !seen {
			prev = p.AvailableQuantity
			order = append(order, p.ID)
		}
		next := prev + sign*ln.Qty
		running[p.ID] = next
		inStock := next > 0
		if sign > 0 {
			inStock = true
		}
		changes = append(changes, Change{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  string(p.Category),
			OrderRef:  orderRef,
			Reason:    reason,
			Previous:  prev,
			Current:   next,
			Delta:     sign * ln.Qty,
			InStock:   inStock,
		})
	}

	for _, id := range order {
		p := locked[id]
		qty := running[id]
		inStock := qty > 0
		if sign > 0 {
			inStock = true
		}
		if err := tx.WriteLevel(ctx, Level{productID: id, quantity: qty, inStock: inStock, prevVersion: p.Version, at: now}); err != nil {
			return nil, err
		}
	}
	for _, c := range changes {
		if err := tx.AppendMovement(ctx, l.movement(c, "", now)); err != nil {
			return nil, err
		}
		metrics.StockMovements.WithLabelValues(string(c.Reason)).Add(float64(abs(c.Delta)))
	}
	return changes, nil
}

// Adjust applies an administrative correction or restock. The resulting
// quantity must not be negative; the product is sellable again iff it has stock.
func (l *Ledger) Adjust(ctx context.Context, tx Tx, productID string, delta int, note string) (Change, error) {
	const op = "inventory.Adjust"
	if delta == 0 {
		return Change{}, apperr.Validation(op, "delta must not be zero")
	}
	p, err := l.lockOne(ctx, tx, op, productID)
	if err != nil {
		return Change{}, err
	}
	next := p.AvailableQuantity + delta
	if next < 0 {
		return Change{}, apperr.Validation(op, "stock for %s cannot go below zero (have %d, delta %d)", p.Name, p.AvailableQuantity, delta)
	}
	now := l.clock()
	if err := tx.WriteLevel(ctx, Level{productID: p.ID, quantity: next, inStock: next > 0, prevVersion: p.Version, at: now}); err != nil {
		return Change{}, err
	}
	c := Change{
		ProductID: p.ID, Name: p.Name, Category: string(p.Category), Reason: ReasonAdjustment,
		Previous: p.AvailableQuantity, Current: next, Delta: delta, InStock: next > 0,
	}
	if err := tx.AppendMovement(ctx, l.movement(c, note, now)); err != nil {
		return Change{}, err
	}
	metrics.StockMovements.WithLabelValues(string(ReasonAdjustment)).Add(float64(abs(delta)))
	return c, nil
}

// SetActive takes a product off sale or puts it back. Reactivation only
// marks it in stock when it has units.
func (l *Ledger) SetActive(ctx context.Context, tx Tx, productID string, active bool) (Change, error) {
	const op = "inventory.SetActive"
	p, err := l.lockOne(ctx, tx, op, productID)
	if err != nil {
		return Change{}, err
	}
	inStock := active && p.AvailableQuantity > 0
	now := l.clock()
	if err := tx.WriteLevel(ctx, Level{productID: p.ID, quantity: p.AvailableQuantity, inStock: inStock, prevVersion: p.Version, at: now}); err != nil {
		return Change{}, err
	}
	c := Change{
		ProductID: p.ID, Name: p.Name, Category: string(p.Category), Reason: ReasonActivation,
		Previous: p.AvailableQuantity, Current: p.AvailableQuantity, InStock: inStock,
	}
	if err := tx.AppendMovement(ctx, l.movement(c, "active="+strconv.FormatBool(active), now)); err != nil {
		return Change{}, err
	}
	return c, nil
}

// Register inserts a new catalog product with its opening stock.
func (l *Ledger) Register(ctx context.Context, tx Tx, p Product, openingQty int) (Product, error) {
	const op = "inventory.Register"
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return Product{}, apperr.Validation(op, "product name is required")
	case p.Code == "":
		return Product{}, apperr.Validation(op, "product code is required")
	case !p.Category.Valid():
		return Product{}, apperr.Validation(op, "category must be one of: frames, lenses, eyedrop, accessories")
	case p.Price.IsNegative():
		return Product{}, apperr.Validation(op, "price must be positive")
	case openingQty < 0:
		return Product{}, apperr.Validation(op, "stock amount cannot be negative")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := l.clock()
	p.CreatedAt, p.UpdatedAt = now, now
	p.AvailableQuantity = openingQty
	p.InStock = openingQty > 0
	p.Version = 1

	lvl := Level{productID: p.ID, quantity: openingQty, inStock: p.InStock, prevVersion: 0, at: now}
	if err := tx.InsertProduct(ctx, p, lvl); err != nil {
		return Product{}, err
	}
	c := Change{ProductID: p.ID, Name: p.Name, Category: string(p.Category), Reason: ReasonInitial, Current: openingQty, Delta: openingQty, InStock: p.InStock}
	if err := tx.AppendMovement(ctx, l.movement(c, "", now)); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (l *Ledger) lockOne(ctx context.Context, tx Tx, op, productID string) (Product, error) {
	if strings.TrimSpace(productID) == "" {
		return Product{}, apperr.Validation(op, "product id is required")
	}
	locked, err := tx.LockProducts(ctx, []string{productID})
	if err != nil {
		return Product{}, err
	}
	p, ok := locked[productID]
	if !ok {
		return Product{}, apperr.NotFound(op, "product %s not found", productID)
	}
	return p, nil
}

func (l *Ledger) movement(c Change, note string, at time.Time) Movement {
	return Movement{
		ID:            l.newID(),
		ProductID:     c.ProductID,
		OrderRef:      c.OrderRef,
		Delta:         c.Delta,
		Reason:        c.Reason,
		Note:          note,
		QuantityAfter: c.Current,
		CreatedAt:     at,
	}
}

func validateLines(op string, lines []Line) error {
	if len(lines) == 0 {
		return apperr.Validation(op, "at least one line is required")
	}
	for i, ln := range lines {
		if strings.TrimSpace(ln.ProductID) == "" {
			return apperr.Validation(op, "line %d has no product id", i+1)
		}
		if ln.Qty < 1 {
			return apperr.Validation(op, "line %d: quantity must be at least 1", i+1)
		}
	}
	return nil
}

// lineIDs returns the distinct product ids sorted ascending, the order in
// which rows are locked.
func lineIDs(lines []Line) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, ln := range lines {
		if _, ok := seen[ln.ProductID]; ok {
			continue
		}
		seen[ln.ProductID] = struct{}{}
		ids = append(ids, ln.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
