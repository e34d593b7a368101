package middleware

import (
	"net/http"

	"emeet/backend/internal/security"
)

// Tokens validates access tokens.
type Tokens interface {
	ValidateAccess(token string) (security.Identity, error)
}

// Auth validates the Bearer access token and stores the caller in the request context. Requests
// without a valid token get 401. Mount it outside Telemetry so events carry the caller.
func Auth(tokens Tokens, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := security.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeUnauthorized(w)
			return
		}
		id, err := tokens.ValidateAccess(token)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="emeet"`)
	http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
}
