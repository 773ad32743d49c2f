package middleware

import (
	"net/http"
	"strings"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/store"
)

// RequireAuth verifies the Authorization bearer token and populates the
// request context with the caller's Identity. The user row is loaded on
// every request so the phone reflects the current record, not the one
// captured at token issue time.
func RequireAuth(tokens *auth.TokenService, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := users.GetByID(claims.UserID)
			if err != nil || user == nil {
				unauthorized(w)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{
				UserID: user.ID,
				Phone:  user.Phone,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}
