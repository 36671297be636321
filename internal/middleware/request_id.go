package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestIDHeader はリクエストIDを返すレスポンスヘッダー名。
const RequestIDHeader = "X-Request-Id"

// NewRequestIDHeaderMiddleware はchiのRequestIDが払い出したIDをレスポンスヘッダーに設定する。
// chimw.RequestIDの後段に置く。
func NewRequestIDHeaderMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := chimw.GetReqID(r.Context()); id != "" {
				w.Header().Set(RequestIDHeader, id)
			}
			next.ServeHTTP(w, r)
		})
	}
}
