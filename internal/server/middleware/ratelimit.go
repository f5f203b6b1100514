package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per window. Uses a sliding window algorithm.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requests, window)
}

// RateLimitByCredential returns an HTTP middleware that limits requests per
// presented credential. API keys are bucketed by the X-API-Key header and
// tokens by the Authorization header; requests carrying neither fall back
// to the client IP.
func RateLimitByCredential(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if k := r.Header.Get("X-API-Key"); k != "" {
				return k, nil
			}
			if a := r.Header.Get("Authorization"); a != "" {
				return a, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
