package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminTokenHeader is accepted alongside "Authorization: Bearer <token>".
const AdminTokenHeader = "X-Admin-Token"

// requireAdminToken returns middleware that rejects requests not carrying
// token. An empty token disables the check.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(requestToken(r))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				RecordConnectionRejected("auth")
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	if tok := r.Header.Get(AdminTokenHeader); tok != "" {
		return tok
	}
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// basicAuth guards the debug server.
func basicAuth(user, pass string, next http.Handler) http.Handler {
	wantUser, wantPass := []byte(user), []byte(pass)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), wantUser) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), wantPass) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
