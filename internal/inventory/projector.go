package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/storefront-orders/internal/events"
	kafkax "github.com/ariefcatur/storefront-orders/internal/kafka"
	"github.com/ariefcatur/storefront-orders/internal/metrics"
)

// SnapshotStore keeps the projected stock levels and the dedup markers of
// processed events.
type SnapshotStore interface {
	MarkProcessed(ctx context.Context, scope, eventID string) (bool, error)
	Forget(ctx context.Context, scope, eventID string) error
	PutStockSnapshot(ctx context.Context, productID string, body []byte) error
}

// Projector consumes StockChanged events and keeps a read model of stock
// levels outside the database.
type Projector struct {
	Cache             SnapshotStore
	LowStockThreshold int
	Logger            *zap.Logger
	ServiceName       string
}

// HandleStockChanged is installed as the kafka consumer handler.
func (p *Projector) HandleStockChanged(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and commit so the partition keeps moving
		p.log().Error("undecodable envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != events.EventStockChanged {
		return nil
	}

	first, err := p.Cache.MarkProcessed(ctx, p.scope(), env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	payload, err := kafkax.UnwrapPayload[events.StockChangedPayload](env.Payload)
	if err != nil {
		p.log().Error("bad stock payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if err := p.Cache.PutStockSnapshot(ctx, payload.ProductID, env.Payload); err != nil {
		_ = p.Cache.Forget(ctx, p.scope(), env.EventID)
		return fmt.Errorf("stock snapshot %s: %w", payload.ProductID, err)
	}

	metrics.StockLevel.WithLabelValues(payload.ProductID).Set(float64(payload.Current))
	fields := []zap.Field{
		zap.String("product_id", payload.ProductID),
		zap.String("name", payload.Name),
		zap.String("reason", payload.Reason),
		zap.Int("previous", payload.Previous),
		zap.Int("current", payload.Current),
	}
	switch {
	case payload.Current == 0:
		p.log().Warn("product out of stock", fields...)
	case payload.Current <= p.LowStockThreshold:
		p.log().Warn("low stock", fields...)
	default:
		p.log().Debug("stock projected", fields...)
	}
	return nil
}

func (p *Projector) scope() string {
	if p.ServiceName == "" {
		return "inventory"
	}
	return p.ServiceName
}

func (p *Projector) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
