package quota

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/metrics"
	"github.com/AndyChoi4495/fragments/internal/protocol"
)

// KeyFromContext extracts the rate limit key (the owner id) from the
// request context. It keeps this package independent of auth.
type KeyFromContext func(ctx context.Context) string

// RateLimitMiddleware returns middleware that enforces limiter per owner.
// Requests without an owner pass through, as do requests the limiter
// cannot judge because its backing store failed.
func RateLimitMiddleware(limiter Limiter, keyFn KeyFromContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r.Context())
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, wait, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logging.WithContext(r.Context()).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.RecordRateLimited()
				seconds := int(math.Ceil(wait.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(protocol.NewError(http.StatusTooManyRequests, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
