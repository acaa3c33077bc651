package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// TurnLimiter throttles assistant turns per caller. Model calls dominate turn
// cost, so the limit is enforced before orchestration starts.
type TurnLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	every time.Duration
	burst int
}

// NewTurnLimiter creates a limiter that admits one turn per `every` with the
// given burst, tracked independently per key.
func NewTurnLimiter(every time.Duration, burst int) *TurnLimiter {
	if every <= 0 {
		every = time.Second
	}
	if burst < 1 {
		burst = 1
	}
	return &TurnLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
	}
}

func (tl *TurnLimiter) getLimiter(key string) *rate.Limiter {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if limiter, ok := tl.limiters[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(tl.every), tl.burst)
	tl.limiters[key] = limiter
	return limiter
}

// Allow reports whether a turn is admitted for the given key.
func (tl *TurnLimiter) Allow(key string) bool {
	return tl.getLimiter(key).Allow()
}

// Middleware rejects over-limit requests with 429. keyFunc derives the
// limiter key from the request, typically the caller identity.
func (tl *TurnLimiter) Middleware(keyFunc func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tl.Allow(keyFunc(c)) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			}
			return next(c)
		}
	}
}
