package middleware

import (
	"context"
	"net/http"
	"time"
)

// Matches the envelope the rest package writes for every other error.
const timeoutBody = `{"success":false,"error":{"code":"TIMEOUT","message":"request exceeded the processing deadline"}}`

// Timeout bounds request handling. The context deadline stops in-flight
// repository and gateway calls; the TimeoutHandler wrapper answers the
// client once the budget is spent.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, timeout, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			bounded.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
