package httpmw

import (
	"net/http"
	"strings"

	"github.com/hackhub/presence-service/pkg/auth"
)

// AuthMiddleware verifies the bearer token and stores the resolved identity in
// the request context.
func AuthMiddleware(tokens *auth.JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") || len(header) <= 7 {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			identity, err := tokens.Verify(strings.TrimSpace(header[7:]))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}
