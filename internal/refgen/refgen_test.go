package refgen

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("WAT", 3600))
}

func TestGenerateShape(t *testing.T) {
	g := New(WithClock(fixedClock))
	for i := 0; i < 200; i++ {
		ref, err := g.Generate("gls")
		require.NoError(t, err)
		assert.True(t, Valid(ref), "ref %q", ref)
		// 23:30 at UTC+1 is still the 9th in UTC
		assert.Equal(t, "GLS-20250309-", ref[:13])
	}
}

func TestGenerateUsesRandomSource(t *testing.T) {
	// 0 -> A, 25 -> Z, 26 -> 0, 255 rejected, 35 -> 9
	src := bytes.NewReader([]byte{0, 25, 255, 26, 35, 1, 2, 3})
	g := New(WithClock(fixedClock), WithRandom(src))

	ref, err := g.Generate("CEC")
	require.NoError(t, err)
	assert.Equal(t, "CEC-20250309-AZ09", ref)
}

func TestGenerateRequiresPrefix(t *testing.T) {
	_, err := New().Generate("  ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMintRetriesOnCollision(t *testing.T) {
	g := New(WithClock(fixedClock))
	calls := 0
	ref, err := g.Mint(context.Background(), "GLS", func(context.Context, string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, Valid(ref))
}

func TestMintGivesUpAfterMaxAttempts(t *testing.T) {
	g := New(WithMaxAttempts(4))
	calls := 0
	_, err := g.Mint(context.Background(), "GLS", func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.True(t, apperr.HasCode(err, apperr.CodeRefExhausted))
}

func TestMintSurfacesLookupErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := New().Mint(context.Background(), "GLS", func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestMintStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Mint(ctx, "GLS", func(context.Context, string) (bool, error) {
		t.Fatal("lookup must not run")
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"GLS-20250101-AB12": true,
		"CEC-20250101-0000": true,
		"gls-20250101-AB12": false,
		"GLS-2025011-AB12":  false,
		"GLS-20250101-AB1":  false,
		"6650f0c2a1":        false,
	}
	for in, want := range cases {
		assert.Equal(t, want, Valid(in), in)
	}
}
