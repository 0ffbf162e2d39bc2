package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/tidycsv/internal/auth"
	"github.com/JonMunkholm/tidycsv/internal/core"
)

// LoginPath is where unauthenticated browser requests are sent.
const LoginPath = "/login"

// SessionResolver maps a session token to the identity behind it.
type SessionResolver interface {
	Resolve(token string) (core.Identity, bool)
}

// SessionAuth rejects requests without a valid session cookie and attaches
// the caller's identity to the request context otherwise.
//
// Browser page loads are redirected to LoginPath; everything else gets a
// 401 JSON body.
func SessionAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.TokenFromRequest(r)
			var id core.Identity
			if ok {
				id, ok = sessions.Resolve(token)
			}

			if !ok {
				slog.Debug("auth: no valid session",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				if wantsHTML(r) {
					http.Redirect(w, r, LoginPath, http.StatusFound)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication required","code":"AUTH001","status":401}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// wantsHTML reports whether r is a browser navigation.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
