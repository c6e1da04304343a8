// Package auth extracts the tenant from an already-issued bearer token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleSuperAdmin may act on any tenant by naming it in TenantHeader.
const RoleSuperAdmin = "super_admin"

const TenantHeader = "X-Tenant-ID"

var ErrNoTenant = errors.New("token carries no business")

// Claims are the token fields the API relies on.
type Claims struct {
	BusinessID string   `json:"business_id"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// WithTenant returns a context carrying tenantID.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// TenantID returns the tenant set by the middleware, or "".
func TenantID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// NewToken signs claims for businessID with HS256.
func NewToken(secret []byte, businessID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		BusinessID: businessID,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

// Parse validates an HS256 token and returns its claims.
func Parse(secret []byte, token string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	return claims, nil
}

// Middleware resolves the tenant of every request. With an empty secret it
// trusts TenantHeader as is, which is only fit for local development.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	if len(secret) == 0 {
		slog.Warn("JWT_SECRET is not set; trusting the tenant header")

		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
				if tenantID == "" {
					http.Error(w, "missing "+TenantHeader, http.StatusUnauthorized)
					return
				}

				next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenantID)))
			})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := Parse(secret, token)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			tenantID := claims.BusinessID

			if override := strings.TrimSpace(r.Header.Get(TenantHeader)); override != "" && override != tenantID {
				if !slices.Contains(claims.Roles, RoleSuperAdmin) {
					http.Error(w, "cannot act on another business", http.StatusForbidden)
					return
				}

				slog.Info("tenant override", "from", tenantID, "to", override, "subject", claims.Subject)
				tenantID = override
			}

			if tenantID == "" {
				http.Error(w, ErrNoTenant.Error(), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenantID)))
		})
	}
}
