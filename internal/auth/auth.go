// Package auth carries the admin principal asserted by the bearer token gate.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

type Principal struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Subject != "" && (p.Role == RoleAdmin || p.Role == RoleSuperAdmin)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// IsAdmin reports whether an admin principal was asserted on ctx.
func IsAdmin(ctx context.Context) bool {
	p, ok := FromContext(ctx)
	return ok && p.IsAdmin()
}

// Claims is the JWT body accepted by Verifier.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrNotAdmin = errors.New("auth: principal is not an admin")
	ErrNoSecret = errors.New("auth: no signing secret configured")
)

type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify checks an HS256 token and returns its principal.
func (v *Verifier) Verify(raw string) (Principal, error) {
	if len(v.secret) == 0 {
		return Principal{}, ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var c Claims
	if _, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return Principal{}, err
	}
	p := Principal{Subject: c.Subject, Email: c.Email, Role: c.Role}
	if !p.IsAdmin() {
		return p, ErrNotAdmin
	}
	return p, nil
}

// RequireAdmin rejects requests without a valid admin bearer token and
// stores the principal on the request context otherwise.
func (v *Verifier) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			deny(w, http.StatusUnauthorized, "invalid_request", "No token provided. Please login.")
			return
		}
		p, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
		switch {
		case errors.Is(err, ErrNotAdmin):
			deny(w, http.StatusForbidden, "insufficient_scope", "Admin role required.")
			return
		case errors.Is(err, jwt.ErrTokenExpired):
			deny(w, http.StatusUnauthorized, "invalid_token", "Your session has expired. Please login again.")
			return
		case err != nil:
			deny(w, http.StatusUnauthorized, "invalid_token", "Invalid authentication token.")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func deny(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code, "message": desc, "status": status})
}
