package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// limiterStore holds one token bucket per key. Idle limiters are swept so
// the map does not grow with every client IP ever seen.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	cfg      RateLimitConfig
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	s := &limiterStore{
		limiters: make(map[string]*clientLimiter),
		cfg:      cfg,
	}
	go s.sweepLoop()
	return s
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, ok := s.limiters[key]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize),
		}
		s.limiters[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (s *limiterStore) sweepLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		s.mu.Lock()
		for key, cl := range s.limiters {
			if cl.lastSeen.Before(cutoff) {
				delete(s.limiters, key)
			}
		}
		s.mu.Unlock()
	}
}

// RateLimit throttles requests per client. Authenticated requests are
// keyed by principal so one busy clinic workstation cannot exhaust the
// budget of everyone behind the same NAT; anonymous requests (login) are
// keyed by IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if pid, ok := c.Get("principal_id").(string); ok && pid != "" {
				key = pid
			}

			if !store.get(key).Allow() {
				c.Response().Header().Set("Retry-After", "1")
				c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}
