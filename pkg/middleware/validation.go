// pkg/middleware/validation.go

package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// MaxBodySize ограничение на тело запроса: ордер занимает сотни байт
const MaxBodySize = 1 << 20

// ErrorResponse формат ошибки: {"detail": "..."}
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WriteError пишет JSON ошибку с кодом статуса
func WriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Detail: detail})
}

// ValidateRequest проверяет корректность запроса перед передачей его обработчику
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.Contains(contentType, "application/json") {
				WriteError(w, http.StatusBadRequest, "Invalid Content-Type, expected application/json")
				return
			}

			if r.ContentLength == 0 {
				WriteError(w, http.StatusBadRequest, "Request body cannot be empty")
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

		next.ServeHTTP(w, r)
	})
}

// LimitBody только ограничивает размер тела. Для вебхука: TradingView шлёт text/plain.
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		next.ServeHTTP(w, r)
	})
}
