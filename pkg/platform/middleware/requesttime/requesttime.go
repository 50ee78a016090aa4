// Package requesttime pins a single "now" per HTTP request so freshness and
// replay decisions inside one verification all see the same instant.
package requesttime

import (
	"net/http"
	"time"

	"skyseal/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and stores
// it in the context for consistent time references throughout the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
