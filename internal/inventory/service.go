package inventory

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/events"
	"github.com/ariefcatur/storefront-orders/internal/logging"
)

// Service exposes catalog reads and the administrative stock operations.
type Service struct {
	Store       Store
	Ledger      *Ledger
	Publisher   events.Publisher
	Logger      *zap.Logger
	ServiceName string
}

type RegisterInput struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Category    Category        `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.Store.ListProducts(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.Store.FindProductByID(ctx, id)
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Product, error) {
	if !auth.IsAdmin(ctx) {
		return Product{}, apperr.Forbidden("inventory.Register", "admin access required")
	}
	var out Product
	err := s.Store.WithStockTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := s.Ledger.Register(ctx, tx, Product{
			Code:        in.Code,
			Name:        in.Name,
			Category:    in.Category,
			Price:       in.Price,
			Description: in.Description,
		}, in.Quantity)
		out = p
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.log().Info("product registered", zap.String("product_id", out.ID), zap.String("code", out.Code), zap.Int("quantity", out.AvailableQuantity))
	s.PublishChanges(ctx, Change{
		ProductID: out.ID, Name: out.Name, Category: string(out.Category), Reason: ReasonInitial,
		Current: out.AvailableQuantity, Delta: out.AvailableQuantity, InStock: out.InStock,
	})
	return out, nil
}

// Adjust restocks or corrects a product by delta units.
func (s *Service) Adjust(ctx context.Context, productID string, delta int, note string) (Change, error) {
	if !auth.IsAdmin(ctx) {
		return Change{}, apperr.Forbidden("inventory.Adjust", "admin access required")
	}
	var c Change
	err := s.Store.WithStockTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		c, err = s.Ledger.Adjust(ctx, tx, productID, delta, note)
		return err
	})
	if err != nil {
		return Change{}, err
	}
	s.PublishChanges(ctx, c)
	return c, nil
}

func (s *Service) SetActive(ctx context.Context, productID string, active bool) (Change, error) {
	if !auth.IsAdmin(ctx) {
		return Change{}, apperr.Forbidden("inventory.SetActive", "admin access required")
	}
	var c Change
	err := s.Store.WithStockTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		c, err = s.Ledger.SetActive(ctx, tx, productID, active)
		return err
	})
	if err != nil {
		return Change{}, err
	}
	s.PublishChanges(ctx, c)
	return c, nil
}

// PublishChanges emits one StockChanged event per change. Failures are
// logged; the committed stock write stands regardless.
func (s *Service) PublishChanges(ctx context.Context, changes ...Change) {
	PublishChanges(ctx, s.Publisher, s.ServiceName, s.log(), changes...)
}

// PublishChanges is shared with the order service, which writes stock as a
// side effect of order transitions.
func PublishChanges(ctx context.Context, pub events.Publisher, producer string, log *zap.Logger, changes ...Change) {
	if pub == nil {
		return
	}
	for _, c := range changes {
		env, err := events.New(events.EventStockChanged, producer, c.ProductID, c.Payload())
		if err == nil {
			env.TraceID = logging.RequestID(ctx)
			err = pub.Publish(ctx, events.TopicStock, env)
		}
		if err != nil {
			log.Warn("publish stock change failed", zap.String("product_id", c.ProductID), zap.Error(err))
		}
	}
}

func (c Change) Payload() events.StockChangedPayload {
	return events.StockChangedPayload{
		ProductID: c.ProductID,
		Name:      c.Name,
		OrderRef:  c.OrderRef,
		Reason:    string(c.Reason),
		Previous:  c.Previous,
		Current:   c.Current,
		Delta:     c.Delta,
		InStock:   c.InStock,
	}
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
