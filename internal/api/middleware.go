package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requestKey pulls the caller's API key from X-API-Key, falling back to
// Authorization: Bearer. Empty means no credential was presented.
func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// APIKeyAuth guards the job-submission surface with a shared backend
// key. A missing credential is 401, a wrong one 403.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			if key == "" {
				respondError(w, http.StatusUnauthorized, "Missing API key. Provide X-API-Key header or Authorization: Bearer <key>")
				return
			}

			// Constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				respondError(w, http.StatusForbidden, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
