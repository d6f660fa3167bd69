package testutil

import (
	"net/http"
	"time"

	"uniid/pkg/requestcontext"
)

// WithRequestTime pins the request clock, as the RequestTime middleware
// would for a live request.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// FixedClock returns middleware that pins every request to now.
func FixedClock(now time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, WithRequestTime(r, now))
		})
	}
}
