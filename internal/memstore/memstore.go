// Package memstore is an in-process implementation of the order, stock and
// appointment stores. A transaction holds the store lock for its whole
// duration and works on a copy of the state that replaces the live state
// only on commit.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/appointments"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	"github.com/ariefcatur/storefront-orders/internal/orders"
)

var (
	_ orders.Store       = (*Store)(nil)
	_ inventory.Store    = (*Store)(nil)
	_ appointments.Store = (*Store)(nil)
)

type Store struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	products     map[string]inventory.Product
	codes        map[string]string
	orders       map[string]orders.Order
	refs         map[string]string
	movements    []inventory.Movement
	appointments map[string]appointments.Appointment
	apptRefs     map[string]string
}

func New() *Store {
	return &Store{st: &state{
		products:     map[string]inventory.Product{},
		codes:        map[string]string{},
		orders:       map[string]orders.Order{},
		refs:         map[string]string{},
		appointments: map[string]appointments.Appointment{},
		apptRefs:     map[string]string{},
	}}
}

func (s *state) clone() *state {
	cp := &state{
		products:     make(map[string]inventory.Product, len(s.products)),
		codes:        make(map[string]string, len(s.codes)),
		orders:       make(map[string]orders.Order, len(s.orders)),
		refs:         make(map[string]string, len(s.refs)),
		movements:    append([]inventory.Movement(nil), s.movements...),
		appointments: s.appointments,
		apptRefs:     s.apptRefs,
	}
	for k, v := range s.products {
		cp.products[k] = v
	}
	for k, v := range s.codes {
		cp.codes[k] = v
	}
	for k, v := range s.orders {
		cp.orders[k] = copyOrder(v)
	}
	for k, v := range s.refs {
		cp.refs[k] = v
	}
	return cp
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.LineItem(nil), o.Items...)
	return o
}

// WithTx runs fn against a private copy of the state. Concurrent
// transactions are serialized.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("memstore.WithTx", err)
	}
	t := &tx{st: s.st.clone()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("memstore.WithTx", err)
	}
	s.st = t.st
	return nil
}

func (s *Store) WithStockTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	return s.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error { return fn(ctx, tx) })
}

func (s *Store) FindProductByID(_ context.Context, id string) (inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.product(id)
}

func (s *Store) ListProducts(context.Context) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listProducts(), nil
}

func (s *Store) FindOrderByID(_ context.Context, id string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.order(id)
}

func (s *Store) FindOrderByRef(_ context.Context, ref string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.st.refs[ref]
	if !ok {
		return orders.Order{}, apperr.NotFound("memstore.FindOrderByRef", "order %s not found", ref)
	}
	return s.st.order(id)
}

func (s *Store) RefExists(_ context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.st.refs[ref]
	return ok, nil
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orders.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Ref > out[j].Ref
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Movements returns the stock audit trail of a product, oldest first.
func (s *Store) Movements(productID string) []inventory.Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Movement
	for _, m := range s.st.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

func (st *state) product(id string) (inventory.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return inventory.Product{}, apperr.NotFound("memstore.FindProductByID", "product %s not found", id)
	}
	return p, nil
}

func (st *state) listProducts() []inventory.Product {
	out := make([]inventory.Product, 0, len(st.products))
	for _, p := range st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (st *state) order(id string) (orders.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("memstore.FindOrderByID", "order %s not found", id)
	}
	return copyOrder(o), nil
}

type tx struct {
	st *state
}

func (t *tx) FindProductByID(_ context.Context, id string) (inventory.Product, error) {
	return t.st.product(id)
}

func (t *tx) ListProducts(context.Context) ([]inventory.Product, error) {
	return t.st.listProducts(), nil
}

func (t *tx) LockProducts(_ context.Context, ids []string) (map[string]inventory.Product, error) {
	out := make(map[string]inventory.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) WriteLevel(_ context.Context, l inventory.Level) error {
	const op = "memstore.WriteLevel"
	p, ok := t.st.products[l.ProductID()]
	if !ok {
		return apperr.NotFound(op, "product %s not found", l.ProductID())
	}
	if p.Version != l.PrevVersion() {
		return apperr.Conflict(op, apperr.CodeVersionMismatch,
			"product %s changed concurrently (version %d, expected %d)", p.ID, p.Version, l.PrevVersion())
	}
	p.AvailableQuantity = l.Quantity()
	p.InStock = l.InStock()
	p.Version = l.NextVersion()
	p.UpdatedAt = l.UpdatedAt()
	t.st.products[p.ID] = p
	return nil
}

func (t *tx) AppendMovement(_ context.Context, m inventory.Movement) error {
	t.st.movements = append(t.st.movements, m)
	return nil
}

func (t *tx) InsertProduct(_ context.Context, p inventory.Product, l inventory.Level) error {
	const op = "memstore.InsertProduct"
	if _, ok := t.st.products[p.ID]; ok {
		return apperr.Conflict(op, apperr.CodeDuplicateKey, "product %s already exists", p.ID)
	}
	if _, ok := t.st.codes[p.Code]; ok {
		return apperr.Conflict(op, apperr.CodeDuplicateKey, "product code %s already exists", p.Code)
	}
	p.AvailableQuantity = l.Quantity()
	p.InStock = l.InStock()
	p.Version = l.NextVersion()
	t.st.products[p.ID] = p
	t.st.codes[p.Code] = p.ID
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	return t.st.order(id)
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	const op = "memstore.InsertOrder"
	if _, ok := t.st.refs[o.Ref]; ok {
		return apperr.Conflict(op, apperr.CodeDuplicateRef, "order reference %s already exists", o.Ref)
	}
	if _, ok := t.st.orders[o.ID]; ok {
		return apperr.Conflict(op, apperr.CodeDuplicateKey, "order %s already exists", o.ID)
	}
	t.st.orders[o.ID] = copyOrder(o)
	t.st.refs[o.Ref] = o.ID
	return nil
}

func (t *tx) SaveOrder(_ context.Context, o orders.Order) error {
	const op = "memstore.SaveOrder"
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return apperr.NotFound(op, "order %s not found", o.ID)
	}
	if cur.Version != o.Version {
		return apperr.Conflict(op, apperr.CodeVersionMismatch, "order %s changed concurrently", o.ID)
	}
	o = copyOrder(o)
	o.Ref = cur.Ref
	o.Version++
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) DeleteOrder(_ context.Context, id string) error {
	o, ok := t.st.orders[id]
	if !ok {
		return apperr.NotFound("memstore.DeleteOrder", "order %s not found", id)
	}
	delete(t.st.orders, id)
	delete(t.st.refs, o.Ref)
	return nil
}

func (s *Store) AppointmentRefExists(_ context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.st.apptRefs[ref]
	return ok, nil
}

func (s *Store) InsertAppointment(_ context.Context, a appointments.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.apptRefs[a.Ref]; ok {
		return apperr.Conflict("memstore.InsertAppointment", apperr.CodeDuplicateRef, "appointment reference %s already exists", a.Ref)
	}
	s.st.appointments[a.ID] = a
	s.st.apptRefs[a.Ref] = a.ID
	return nil
}

func (s *Store) FindAppointmentByID(_ context.Context, id string) (appointments.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.st.appointments[id]
	if !ok {
		return appointments.Appointment{}, apperr.NotFound("memstore.FindAppointmentByID", "appointment %s not found", id)
	}
	return a, nil
}

func (s *Store) ListAppointments(_ context.Context, limit int) ([]appointments.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appointments.Appointment, 0, len(s.st.appointments))
	for _, a := range s.st.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id string, status appointments.Status, at time.Time) (appointments.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.appointments[id]
	if !ok {
		return appointments.Appointment{}, apperr.NotFound("memstore.UpdateAppointmentStatus", "appointment %s not found", id)
	}
	a.Status = status
	a.UpdatedAt = at
	s.st.appointments[id] = a
	return a, nil
}
