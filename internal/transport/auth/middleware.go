package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// TokenMiddleware guards every route with a single shared token, read from
// the Authorization header or, for websocket upgrades, the token query
// parameter. An empty token disables the check.
func TokenMiddleware(token string, logger *logrus.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	token = strings.TrimSpace(token)
	want := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plain := bearerToken(r)
			if plain == "" {
				plain = r.URL.Query().Get("token")
			}

			got := sha256.Sum256([]byte(strings.TrimSpace(plain)))
			if plain == "" || subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				logger.WithFields(logrus.Fields{
					"module": "auth",
					"method": r.Method,
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				}).Warn("rejected request without a valid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
