package redisx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:order:create:abc", IdemKey("abc"))
	assert.Equal(t, "order:GLS-20250101-AB12", OrderKey("GLS-20250101-AB12"))
	assert.Equal(t, "stock:p-1", StockKey("p-1"))
	assert.Equal(t, "dedup:inventory:evt-1", DedupKey("inventory", "evt-1"))
}

func TestEvictOrderWithoutKeys(t *testing.T) {
	c := NewCache(nil)
	assert.NoError(t, c.EvictOrder(context.Background(), "", ""))
}
