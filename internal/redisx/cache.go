package redisx

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Cache is the redis side of the service: idempotency keys, order snapshots,
// stock snapshots and consumer dedup markers. Redis is never the source of
// truth; callers treat every error as a cache miss.
type Cache struct {
	rdb redis.Cmdable
}

func NewCache(rdb redis.Cmdable) *Cache { return &Cache{rdb: rdb} }

// pendingOrder marks an Idempotency-Key whose order is still being created.
const pendingOrder = "pending"

// ReserveOrder claims an Idempotency-Key. When reserved is false the key was
// already taken and existingID holds its order id, or "" while the first
// request is still in flight.
func (c *Cache) ReserveOrder(ctx context.Context, key string) (existingID string, reserved bool, err error) {
	ok, err := c.rdb.SetNX(ctx, IdemKey(key), pendingOrder, TTLIdemPending).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	id, found, err := c.get(ctx, IdemKey(key))
	if err != nil {
		return "", false, err
	}
	if !found {
		// expired between the two calls; try once more
		ok, err := c.rdb.SetNX(ctx, IdemKey(key), pendingOrder, TTLIdemPending).Result()
		return "", ok, err
	}
	if id == pendingOrder {
		return "", false, nil
	}
	return id, false, nil
}

// ReleaseOrder drops a reservation whose order was never created.
func (c *Cache) ReleaseOrder(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, IdemKey(key)).Err()
}


func (c *Cache) RememberOrder(ctx context.Context, key, orderID string) error {
	return c.rdb.Set(ctx, IdemKey(key), orderID, TTLIdempotency).Err()
}

func (c *Cache) GetOrder(ctx context.Context, idOrRef string) ([]byte, bool, error) {
	s, ok, err := c.get(ctx, OrderKey(idOrRef))
	return []byte(s), ok, err
}

func (c *Cache) PutOrder(ctx context.Context, idOrRef string, body []byte) error {
	return c.rdb.Set(ctx, OrderKey(idOrRef), body, TTLOrderSnapshot).Err()
}

// EvictOrder drops the snapshots stored under every given id or ref.
func (c *Cache) EvictOrder(ctx context.Context, idsOrRefs ...string) error {
	keys := make([]string, 0, len(idsOrRefs))
	for _, k := range idsOrRefs {
		if k != "" {
			keys = append(keys, OrderKey(k))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) PutStockSnapshot(ctx context.Context, productID string, body []byte) error {
	return c.rdb.Set(ctx, StockKey(productID), body, TTLStockSnapshot).Err()
}

// MarkProcessed records eventID for scope and reports whether this call was
// the first to do so.
func (c *Cache) MarkProcessed(ctx context.Context, scope, eventID string) (bool, error) {
	return c.rdb.SetNX(ctx, DedupKey(scope, eventID), "1", TTLDedup).Result()
}

// Forget removes a dedup marker so a failed event can be retried.
func (c *Cache) Forget(ctx context.Context, scope, eventID string) error {
	return c.rdb.Del(ctx, DedupKey(scope, eventID)).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) get(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}
