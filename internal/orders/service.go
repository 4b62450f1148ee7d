// Package orders builds orders and drives their status lifecycle, deducting
// and restoring stock through the inventory ledger.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/events"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
	"github.com/ariefcatur/storefront-orders/internal/logging"
	"github.com/ariefcatur/storefront-orders/internal/metrics"
	"github.com/ariefcatur/storefront-orders/internal/refgen"
)

const (
	DefaultRefPrefix = "GLS"
	DefaultCurrency  = "₦"
	defaultListLimit = 100
)

type Deps struct {
	Store       Store
	Ledger      *inventory.Ledger
	Refs        *refgen.Generator
	Publisher   events.Publisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      *zap.Logger
	RefPrefix   string
	Currency    string
	ServiceName string
}

type Service struct {
	store    Store
	ledger   *inventory.Ledger
	refs     *refgen.Generator
	pub      events.Publisher
	clock    func() time.Time
	newID    func() string
	log      *zap.Logger
	prefix   string
	currency string
	producer string
}

func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		ledger:   d.Ledger,
		refs:     d.Refs,
		pub:      d.Publisher,
		clock:    d.Clock,
		newID:    d.IDGenerator,
		log:      d.Logger,
		prefix:   d.RefPrefix,
		currency: d.Currency,
		producer: d.ServiceName,
	}
	if s.ledger == nil {
		s.ledger = inventory.NewLedger(inventory.LedgerDeps{Logger: d.Logger})
	}
	if s.refs == nil {
		s.refs = refgen.New()
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.prefix == "" {
		s.prefix = DefaultRefPrefix
	}
	if s.currency == "" {
		s.currency = DefaultCurrency
	}
	if s.producer == "" {
		s.producer = "storefront-api"
	}
	s.log = s.log.Named("orders")
	return s
}

// Create validates the input, checks availability of every item, mints a
// unique reference and stores the order as pending. No stock is taken.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (Order, error) {
	const op = "orders.Create"
	in.normalize()
	if err := in.validate(); err != nil {
		return Order{}, err
	}
	items, err := buildItems(ctx, s.ledger, s.store, in.Items)
	if err != nil {
		return Order{}, err
	}

	now := s.clock().UTC()
	o := Order{
		ID:        s.newID(),
		Customer:  in.Customer,
		Items:     items,
		Subtotal:  ComputeSubtotal(items),
		Status:    StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.SetCharges(in.ShippingFee, in.Discount)

	// The pre-check in Mint narrows the race; the unique constraint behind
	// InsertOrder settles it.
	for attempt := 0; attempt < s.refs.MaxAttempts(); attempt++ {
		ref, err := s.refs.Mint(ctx, s.prefix, s.store.RefExists)
		if err != nil {
			return Order{}, err
		}
		o.Ref = ref
		o.ContactMessage = ContactMessage(o, s.currency)
		err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.InsertOrder(ctx, o)
		})
		if apperr.HasCode(err, apperr.CodeDuplicateRef) {
			metrics.RefCollisions.Inc()
			continue
		}
		if err != nil {
			return Order{}, err
		}

		metrics.OrdersCreated.Inc()
		s.logger(ctx).Info("order created",
			zap.String("order_id", o.ID),
			zap.String("ref", o.Ref),
			zap.Int("items", len(o.Items)),
			zap.String("total", o.Total.String()))
		s.publish(ctx, events.EventOrderCreated, o.ID, createdPayload(o))
		return o, nil
	}
	return Order{}, apperr.Conflict(op, apperr.CodeRefExhausted, "could not allocate a unique order reference")
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if strings.TrimSpace(id) == "" {
		return Order{}, apperr.Validation("orders.Get", "order id is required")
	}
	return s.store.FindOrderByID(ctx, id)
}

func (s *Service) GetByRef(ctx context.Context, ref string) (Order, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return Order{}, apperr.Validation("orders.GetByRef", "order reference is required")
	}
	return s.store.FindOrderByRef(ctx, ref)
}

// Lookup resolves either a reference or an order id.
func (s *Service) Lookup(ctx context.Context, idOrRef string) (Order, error) {
	if refgen.Valid(strings.ToUpper(strings.TrimSpace(idOrRef))) {
		return s.GetByRef(ctx, idOrRef)
	}
	return s.Get(ctx, idOrRef)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if !auth.IsAdmin(ctx) {
		return nil, apperr.Forbidden("orders.List", "admin access required")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("orders.List", "invalid status %q", f.Status)
	}
	if f.Limit <= 0 || f.Limit > defaultListLimit {
		f.Limit = defaultListLimit
	}
	return s.store.ListOrders(ctx, f)
}

// UpdateOrderInput carries the admin editable fields. Nil fields are left
// unchanged.
type UpdateOrderInput struct {
	Status      *Status          `json:"status,omitempty"`
	ShippingFee *decimal.Decimal `json:"shipping_fee,omitempty"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
}

// TransitionResult is the order after a status change together with the
// stock writes the change caused.
type TransitionResult struct {
	Order        Order              `json:"order"`
	From         Status             `json:"from"`
	StockChanges []inventory.Change `json:"stock_changes,omitempty"`
}

// MarkPaid moves an order to paid and deducts its stock in the same
// transaction. A paid or cancelled order is rejected with a conflict.
func (s *Service) MarkPaid(ctx context.Context, id string) (TransitionResult, error) {
	if !auth.IsAdmin(ctx) {
		return TransitionResult{}, apperr.Forbidden("orders.MarkPaid", "admin access required")
	}
	paid := StatusPaid
	return s.apply(ctx, id, UpdateOrderInput{Status: &paid}, true)
}

// Update edits status, shipping fee and discount. A status equal to the
// current one is treated as unchanged.
func (s *Service) Update(ctx context.Context, id string, in UpdateOrderInput) (TransitionResult, error) {
	const op = "orders.Update"
	if !auth.IsAdmin(ctx) {
		return TransitionResult{}, apperr.Forbidden(op, "admin access required")
	}
	if in.Status == nil && in.ShippingFee == nil && in.Discount == nil {
		return TransitionResult{}, apperr.Validation(op, "nothing to update")
	}
	if in.Status != nil && !in.Status.Valid() {
		return TransitionResult{}, apperr.Validation(op,
			"invalid status %q, must be one of: pending, paid, shipped, delivered, cancelled", *in.Status)
	}
	if in.ShippingFee != nil && in.ShippingFee.IsNegative() {
		return TransitionResult{}, apperr.Validation(op, "shipping fee cannot be negative")
	}
	if in.Discount != nil && in.Discount.IsNegative() {
		return TransitionResult{}, apperr.Validation(op, "discount cannot be negative")
	}
	return s.apply(ctx, id, in, false)
}

func (s *Service) apply(ctx context.Context, id string, in UpdateOrderInput, strict bool) (TransitionResult, error) {
	var res TransitionResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		res = TransitionResult{From: o.Status}

		if in.Status != nil && (strict || *in.Status != o.Status) {
			eff, err := planTransition(o, *in.Status)
			if err != nil {
				return err
			}
			// stock moves before the status flips, inside the same transaction
			switch eff {
			case effectDeduct:
				res.StockChanges, err = s.ledger.DeductAll(ctx, tx, o.Ref, o.lines())
				o.StockDeducted = true
			case effectRestore:
				res.StockChanges, err = s.ledger.RestoreAll(ctx, tx, o.Ref, o.lines())
				o.StockDeducted = false
			}
			if err != nil {
				return err
			}
			o.Status = *in.Status
		}

		if in.ShippingFee != nil || in.Discount != nil {
			fee, discount := o.ShippingFee, o.Discount
			if in.ShippingFee != nil {
				fee = *in.ShippingFee
			}
			if in.Discount != nil {
				discount = *in.Discount
			}
			o.SetCharges(fee, discount)
		}

		o.UpdatedAt = s.clock().UTC()
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		o.Version++
		res.Order = o
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindInsufficientStock) {
			s.logger(ctx).Info("mark paid rejected",
				zap.String("order_id", id),
				zap.Int("shortages", len(apperr.ShortagesOf(err))))
		}
		return TransitionResult{}, err
	}

	o := res.Order
	if o.Status != res.From {
		metrics.OrderTransitions.WithLabelValues(string(o.Status)).Inc()
		s.logger(ctx).Info("order status changed",
			zap.String("order_id", o.ID),
			zap.String("ref", o.Ref),
			zap.String("from", string(res.From)),
			zap.String("to", string(o.Status)),
			zap.Int("stock_changes", len(res.StockChanges)))
	}
	s.publish(ctx, statusEvent(res.From, o.Status), o.ID, events.OrderStatusPayload{
		OrderID: o.ID, Ref: o.Ref, From: string(res.From), To: string(o.Status), Total: o.Total.String(),
	})
	inventory.PublishChanges(ctx, s.pub, s.producer, s.log, res.StockChanges...)
	return res, nil
}

// Delete removes an order. Stock is not touched, even for a paid order.
func (s *Service) Delete(ctx context.Context, id string) (Order, error) {
	if !auth.IsAdmin(ctx) {
		return Order{}, apperr.Forbidden("orders.Delete", "admin access required")
	}
	var o Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return Order{}, err
	}
	s.logger(ctx).Info("order deleted", zap.String("order_id", o.ID), zap.String("ref", o.Ref), zap.String("status", string(o.Status)))
	s.publish(ctx, events.EventOrderDeleted, o.ID, events.OrderStatusPayload{
		OrderID: o.ID, Ref: o.Ref, From: string(o.Status), Total: o.Total.String(),
	})
	return o, nil
}

func statusEvent(from, to Status) string {
	switch {
	case from == to:
		return events.EventOrderUpdated
	case to == StatusPaid:
		return events.EventOrderPaid
	case to == StatusCancelled:
		return events.EventOrderCancelled
	}
	return events.EventOrderUpdated
}

func createdPayload(o Order) events.OrderCreatedPayload {
	items := make([]events.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.OrderItem{
			ProductID: it.ProductID, Title: it.Title, Qty: it.Qty, UnitPrice: it.UnitPrice.String(),
		})
	}
	return events.OrderCreatedPayload{
		OrderID:        o.ID,
		Ref:            o.Ref,
		CustomerName:   o.Customer.FullName,
		CustomerPhone:  o.Customer.Phone,
		Items:          items,
		Subtotal:       o.Subtotal.String(),
		Total:          o.Total.String(),
		ContactMessage: o.ContactMessage,
	}
}

// publish runs after commit. A broker failure is logged and never undoes
// the committed change.
func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	env, err := events.New(eventType, s.producer, orderID, payload)
	if err == nil {
		env.TraceID = logging.RequestID(ctx)
		err = s.pub.Publish(ctx, events.TopicOrders, env)
	}
	if err != nil {
		s.logger(ctx).Warn("publish failed", zap.String("event_type", eventType), zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	if l := logging.FromContext(ctx); l.Core().Enabled(zap.ErrorLevel) {
		return l.Named("orders")
	}
	return s.log
}
