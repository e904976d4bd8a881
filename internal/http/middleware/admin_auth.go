package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const claimsKey contextKey = "vethomeClaims"

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// Claims identify the caller. Client tokens carry the registry client ID as
// the subject.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminJWT requires an HS256 token with the admin role.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return authenticate(secret, func(_ *http.Request, c *Claims) bool {
		return c.Role == RoleAdmin
	})
}

// PortalJWT admits admins and the client whose ID is the {clientID} route
// parameter.
func PortalJWT(secret string) func(http.Handler) http.Handler {
	return authenticate(secret, func(r *http.Request, c *Claims) bool {
		if c.Role == RoleAdmin {
			return true
		}
		return c.Role == RoleClient && c.Subject != "" && c.Subject == chi.URLParam(r, "clientID")
	})
}

func authenticate(secret string, allowed func(*http.Request, *Claims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				deny(w, http.StatusUnauthorized, "auth disabled")
				return
			}
			tokenString := bearerToken(r)
			if tokenString == "" {
				deny(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !allowed(r, claims) {
				deny(w, http.StatusForbidden, "forbidden")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for websocket upgrades where browsers cannot set headers.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if auth == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ClaimsFromContext returns the caller's claims if the request was authenticated.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}

// IssueToken signs a token for subject with role, valid for ttl.
func IssueToken(secret, role, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "vethome",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
