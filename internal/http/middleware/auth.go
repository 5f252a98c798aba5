package middleware

import (
	"context"
	"net/http"
	"strings"
)

const userIDContextKey contextKey = "user_id"

// Auth resolves the acting user on API routes. Authentication itself is
// owned by the upstream session layer, which forwards the session user in
// X-User-Id; an optional static bearer token guards service-to-service
// deployments without that layer in front.
func Auth(requiredToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAPIRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if requiredToken != "" {
				authorization := r.Header.Get("Authorization")
				const prefix = "Bearer "
				if !strings.HasPrefix(authorization, prefix) {
					writeUnauthorized(w, r)
					return
				}
				token := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
				if token == "" || token != requiredToken {
					writeUnauthorized(w, r)
					return
				}
			}

			userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
			if userID == "" {
				writeUnauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user for the request.
func GetUserID(ctx context.Context) string {
	value, _ := ctx.Value(userIDContextKey).(string)
	return value
}

func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/documents/") || strings.HasPrefix(path, "/thumbnails")
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"authentication required"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}
