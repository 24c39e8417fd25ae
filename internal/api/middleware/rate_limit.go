package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/api/problem"
	"github.com/go-chi/httprate"
)

func rateLimitExceeded(scope string, rps int) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusTooManyRequests,
			problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("Rate limit of %d req/s exceeded for this %s", rps, scope))
	}
}

// PublicRateLimiter throttles unauthenticated traffic per source IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithLimitHandler(rateLimitExceeded("IP", rps)),
	)
}

// AuthRateLimiter throttles per authenticated account, falling back to the
// source IP when no identity is on the context.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := UserIDFromContext(r.Context()); userID != "" {
				return userID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(rateLimitExceeded("account", rps)),
	)
}
