package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:order:create:{idempotency-key} -> order id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// order:{id} -> order JSON, read-through cache for public lookups
	KeyOrderSnapshot = "order:%s"

	// stock:{product_id} -> last projected StockChanged payload
	KeyStockSnapshot = "stock:%s"

	// dedup:{scope}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency   = 24 * time.Hour
	TTLIdemPending   = 30 * time.Second
	TTLOrderSnapshot = 5 * time.Minute
	TTLStockSnapshot = 24 * time.Hour
	TTLDedup         = 48 * time.Hour
)

func IdemKey(key string) string             { return fmt.Sprintf(KeyIdemOrderCreate, key) }
func OrderKey(idOrRef string) string        { return fmt.Sprintf(KeyOrderSnapshot, idOrRef) }
func StockKey(productID string) string      { return fmt.Sprintf(KeyStockSnapshot, productID) }
func DedupKey(scope, eventID string) string { return fmt.Sprintf(KeyDedup, scope, eventID) }
