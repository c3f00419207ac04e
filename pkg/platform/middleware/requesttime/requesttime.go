// Package requesttime pins one "now" per request so every policy check, timestamp and audit
// record within it agrees.
package requesttime

import (
	"net/http"
	"time"

	"chaperone/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
