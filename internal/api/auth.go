package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"log"
	"net/http"
	"strings"
)

// AdminTokenHeader is accepted alongside "Authorization: Bearer <token>".
const AdminTokenHeader = "X-Admin-Token"

// TokenAuth guards mutating routes with a shared admin token.
// An empty token disables the check.
type TokenAuth struct {
	token string
}

// NewTokenAuth creates the guard. Pass "" to leave routes open.
func NewTokenAuth(token string) *TokenAuth {
	if token == "" {
		log.Println("⚠️ No admin token set, POST /api/spawn is open")
	} else {
		log.Println("🔐 Admin token required for POST /api/spawn")
	}
	return &TokenAuth{token: token}
}

// Enabled reports whether a token is required.
func (a *TokenAuth) Enabled() bool {
	return a != nil && a.token != ""
}

// requestToken extracts the presented token, bearer first.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(AdminTokenHeader))
}

// Middleware rejects requests without the admin token.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		if !secureCompare(requestToken(r), a.token) {
			RecordConnectionRejected("auth")
			log.Printf("⚠️ Rejected admin request from %s", GetClientIP(r))
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares in constant time regardless of input lengths.
func secureCompare(got, want string) bool {
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return hmac.Equal(g[:], w[:])
}
