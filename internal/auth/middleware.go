package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/careconnect/identity/internal/account"
	"github.com/careconnect/identity/internal/httputil"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	AccountIDContextKey ContextKey = "account_id"
	EmailContextKey     ContextKey = "account_email"
	RoleContextKey      ContextKey = "account_role"
)

// Middleware guards protected routes by verifying the session token.
type Middleware struct {
	issuer TokenIssuer
}

func NewMiddleware(issuer TokenIssuer) *Middleware {
	return &Middleware{issuer: issuer}
}

// RequireAuth validates the bearer token and puts the account identity
// into the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
			return
		}

		claims, err := m.issuer.Verify(parts[1])
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
				return
			}
			httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			return
		}

		accountID, err := uuid.Parse(claims.AccountID)
		if err != nil {
			httputil.RespondErrorWithCode(w, "invalid account ID in token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDContextKey, accountID)
		ctx = context.WithValue(ctx, EmailContextKey, claims.Email)
		ctx = context.WithValue(ctx, RoleContextKey, claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only the given roles past; it runs after
// RequireAuth.
func (m *Middleware) RequireRole(roles ...account.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRoleFromContext(r.Context())
			if !ok {
				httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.RespondErrorWithCode(w, "insufficient permissions", httputil.CodeForbidden, http.StatusForbidden)
		})
	}
}

// GetAccountIDFromContext extracts the account id set by RequireAuth.
func GetAccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(AccountIDContextKey).(uuid.UUID)
	return id, ok
}

// GetEmailFromContext extracts the account email set by RequireAuth.
func GetEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailContextKey).(string)
	return email, ok
}

// GetRoleFromContext extracts the account role set by RequireAuth.
func GetRoleFromContext(ctx context.Context) (account.Role, bool) {
	role, ok := ctx.Value(RoleContextKey).(account.Role)
	return role, ok
}
