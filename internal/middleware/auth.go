package middleware

import (
	"log/slog"
	"net/http"
)

// RequireAPIKey rejects requests that do not carry the internal API key as a
// bearer token
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader != "Bearer "+apiKey {
				slog.Default().Warn("Unauthorized request",
					"path", r.URL.Path,
					"has_auth", authHeader != "")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
