// Package refgen mints human readable references such as GLS-20251016-7QXA.
package refgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/metrics"
)

const (
	DefaultMaxAttempts = 10

	codeLength = 4
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// largest multiple of len(alphabet) below 256, keeps the draw unbiased
	rejectAbove = 252
)

var refPattern = regexp.MustCompile(`^[A-Z]{2,8}-\d{8}-[A-Z0-9]{4}$`)

// ExistsFunc reports whether ref is already taken in the backing store.
type ExistsFunc func(ctx context.Context, ref string) (bool, error)

type Generator struct {
	clock       func() time.Time
	random      io.Reader
	maxAttempts int
}

type Option func(*Generator)

func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithRandom replaces crypto/rand, mostly for tests.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{
		clock:       time.Now,
		random:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxAttempts is the number of candidates tried before Mint gives up.
func (g *Generator) MaxAttempts() int { return g.maxAttempts }

// Generate returns "{PREFIX}-{YYYYMMDD}-{CODE}" for the current UTC date.
// The result is not checked for uniqueness.
func (g *Generator) Generate(prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", apperr.Validation("refgen.Generate", "prefix is required")
	}
	code, err := g.code()
	if err != nil {
		return "", fmt.Errorf("refgen: draw code: %w", err)
	}
	return prefix + "-" + g.clock().UTC().Format("20060102") + "-" + code, nil
}

// Mint generates references until exists reports a free one, up to MaxAttempts.
func (g *Generator) Mint(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ref, err := g.Generate(prefix)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !taken {
			return ref, nil
		}
		metrics.RefCollisions.Inc()
	}
	return "", apperr.Conflict("refgen.Mint", apperr.CodeRefExhausted,
		"no free %s reference after %d attempts", strings.ToUpper(prefix), g.maxAttempts)
}

func (g *Generator) code() (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has the shape of a generated reference.
func Valid(s string) bool {
	return refPattern.MatchString(s)
}
