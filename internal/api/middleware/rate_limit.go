package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mystore/internal/pkg/errors"
	"mystore/internal/platform/cache"
)

// RateLimiter counts requests per client in fixed windows kept in the shared cache.
type RateLimiter struct {
	store  cache.Store
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(store cache.Store) *RateLimiter {
	return &RateLimiter{store: store, window: time.Minute, now: time.Now}
}

// Limit allows perWindow requests per client for the named bucket. Cache
// errors let the request through.
func (rl *RateLimiter) Limit(name string, perWindow int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if perWindow <= 0 {
				next(w, r)
				return
			}

			windowStart := rl.now().Truncate(rl.window)
			key := fmt.Sprintf("ratelimit:%s:%s:%d", name, clientIP(r), windowStart.Unix())

			count, err := rl.store.Incr(r.Context(), key, rl.window)
			if err != nil {
				log.Warn().Err(err).Str("bucket", name).Msg("rate limit store unavailable")
				next(w, r)
				return
			}

			if count > int64(perWindow) {
				retry := windowStart.Add(rl.window).Sub(rl.now())
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
