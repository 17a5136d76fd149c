package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/queen-doris/admin-application/internal/session"
	"github.com/queen-doris/admin-application/pkg/response"
)

type contextKey string

const (
	ContextUserID    contextKey = "user_id"
	ContextAccountID contextKey = "account_id"
	ContextRole      contextKey = "role"
)

// Roles form a closed set; capability checks happen once here at the
// boundary, not ad hoc inside business logic.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

type Claims struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	Verified  bool   `json:"verified"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret   []byte
	sessions *session.Manager
}

func NewAuthMiddleware(secret string, sessions *session.Manager) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), sessions: sessions}
}

// Require authenticates the bearer token, checks the session is still
// live, and enforces role membership. An empty role list admits any
// authenticated caller.
func (am *AuthMiddleware) Require(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := am.authenticate(w, r)
			if !ok {
				return
			}

			if len(roles) > 0 && !contains(roles, claims.Role) {
				response.Error(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextAccountID, claims.AccountID)
			ctx = context.WithValue(ctx, ContextRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireVerified is Require plus the verified-account gate that fronts
// balance-mutating endpoints.
func (am *AuthMiddleware) RequireVerified(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := am.authenticate(w, r)
			if !ok {
				return
			}
			if len(roles) > 0 && !contains(roles, claims.Role) {
				response.Error(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			if !claims.Verified {
				response.Error(w, http.StatusForbidden, "Account pending verification")
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextAccountID, claims.AccountID)
			ctx = context.WithValue(ctx, ContextRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (am *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		response.Error(w, http.StatusUnauthorized, "Missing bearer token")
		return nil, false
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return am.secret, nil
	})
	if err != nil || !token.Valid {
		response.Error(w, http.StatusUnauthorized, "Invalid or expired token")
		return nil, false
	}

	if claims.SessionID != "" && am.sessions != nil {
		if _, err := am.sessions.Validate(r.Context(), claims.SessionID); err != nil {
			response.Error(w, http.StatusUnauthorized, "Session expired")
			return nil, false
		}
	}

	return claims, true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
