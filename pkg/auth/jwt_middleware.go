// JWT middleware for net/http. Depends on context.go in the same package.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nmxmxh/peerdesk/pkg/metrics"
)

// extractBearerToken extracts the token from the Authorization header.
// Browsers' EventSource cannot set headers, so the stream endpoints also
// accept an access_token query parameter.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return r.URL.Query().Get("access_token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// JWTMiddleware attaches an AuthContext to every request. Requests without a
// valid token continue as guests; handlers decide whether that is enough.
func JWTMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guest := NewContext(r.Context(), &Context{Roles: []string{RoleGuest}})

		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r.WithContext(guest))
			return
		}

		authCtx, err := ParseAndExtractAuthContext(tokenStr, secret)
		if err != nil {
			reason := "invalid"
			if errors.Is(err, jwt.ErrTokenExpired) {
				reason = "expired"
			}
			metrics.TokenErrors.WithLabelValues(reason).Inc()
			next.ServeHTTP(w, r.WithContext(guest))
			return
		}

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), authCtx)))
	})
}
