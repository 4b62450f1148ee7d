package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ariefcatur/storefront-orders/internal/events"
)

type fakeSnapshots struct {
	seen      map[string]bool
	snapshots map[string][]byte
	putErr    error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{seen: map[string]bool{}, snapshots: map[string][]byte{}}
}

func (f *fakeSnapshots) MarkProcessed(_ context.Context, scope, id string) (bool, error) {
	k := scope + ":" + id
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}

func (f *fakeSnapshots) Forget(_ context.Context, scope, id string) error {
	delete(f.seen, scope+":"+id)
	return nil
}

func (f *fakeSnapshots) PutStockSnapshot(_ context.Context, productID string, body []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.snapshots[productID] = body
	return nil
}

func stockMessage(t *testing.T, c Change) (events.Envelope, kafkago.Message) {
	t.Helper()
	env, err := events.New(events.EventStockChanged, "test", c.ProductID, c.Payload())
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return env, kafkago.Message{Topic: events.TopicStock, Value: b}
}

func TestProjectorStoresSnapshotOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	snaps := newFakeSnapshots()
	p := &Projector{Cache: snaps, LowStockThreshold: 3, Logger: zap.New(core)}

	_, msg := stockMessage(t, Change{ProductID: "p1", Name: "Frame", Reason: ReasonOrderPaid, Previous: 5, Current: 2, Delta: -3, InStock: true})
	require.NoError(t, p.HandleStockChanged(context.Background(), msg))
	require.NoError(t, p.HandleStockChanged(context.Background(), msg))

	var got events.StockChangedPayload
	require.NoError(t, json.Unmarshal(snaps.snapshots["p1"], &got))
	assert.Equal(t, 2, got.Current)
	assert.Equal(t, 1, logs.FilterMessage("low stock").Len())
}

func TestProjectorIgnoresOtherEvents(t *testing.T) {
	snaps := newFakeSnapshots()
	p := &Projector{Cache: snaps}
	env, err := events.New(events.EventOrderCreated, "test", "o1", events.OrderCreatedPayload{OrderID: "o1"})
	require.NoError(t, err)
	b, _ := json.Marshal(env)

	require.NoError(t, p.HandleStockChanged(context.Background(), kafkago.Message{Value: b}))
	require.NoError(t, p.HandleStockChanged(context.Background(), kafkago.Message{Value: []byte("{not json")}))
	assert.Empty(t, snaps.snapshots)
	assert.Empty(t, snaps.seen)
}

func TestProjectorRetriesAfterCacheFailure(t *testing.T) {
	snaps := newFakeSnapshots()
	snaps.putErr = errors.New("redis down")
	p := &Projector{Cache: snaps}

	env, msg := stockMessage(t, Change{ProductID: "p1", Current: 0})
	require.Error(t, p.HandleStockChanged(context.Background(), msg))
	assert.False(t, snaps.seen["inventory:"+env.EventID])

	snaps.putErr = nil
	require.NoError(t, p.HandleStockChanged(context.Background(), msg))
	assert.Contains(t, snaps.snapshots, "p1")
}
