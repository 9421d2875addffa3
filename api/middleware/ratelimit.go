package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/farmlink-backend/api/responses"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimitConfig sizes the per-actor token bucket.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

type actorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	actors  map[uuid.UUID]*actorLimiter
	swept   time.Time
	nowFunc func() time.Time
}

func (s *limiterSet) get(actor uuid.UUID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	if now.Sub(s.swept) > limiterIdleTTL {
		for id, entry := range s.actors {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(s.actors, id)
			}
		}
		s.swept = now
	}
	entry, ok := s.actors[actor]
	if !ok {
		entry = &actorLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.actors[actor] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// RateLimit throttles authenticated callers individually. Requests without
// an actor pass through; Auth rejects them earlier on protected routes.
func RateLimit(cfg RateLimitConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	if cfg.PerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.PerMinute
	}
	set := &limiterSet{
		limit:   rate.Limit(float64(cfg.PerMinute) / 60),
		burst:   burst,
		actors:  map[uuid.UUID]*actorLimiter{},
		nowFunc: time.Now,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := UserIDFromContext(r.Context())
			if actor == uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}
			reservation := set.get(actor).Reserve()
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
