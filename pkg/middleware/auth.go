// pkg/middleware/auth.go
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"tvbridge/pkg/jwt"

	"github.com/sirupsen/logrus"
)

type contextKey string

// ClientKey ключ контекста с именем клиента из JWT (claim sub)
const ClientKey contextKey = "client"

// BasicAuth возвращает middleware для базовой аутентификации
func BasicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !ConstantTimeEqual(user, username) || !ConstantTimeEqual(pass, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// JWTAuth проверяет Bearer токен, подписанный HS256 секретом
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(auth, "Bearer ")
			if !found || token == "" {
				WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			client, err := jwt.ParseToken(secret, token)
			if err != nil {
				logrus.Warnf("JWTAuth: rejected token from %s: %v", clientIP(r), err)
				WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ConstantTimeEqual сравнивает строки за константное время
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
