package http

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
)

type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  *time.Ticker
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		cleanup:  time.NewTicker(constants.RateLimitCleanupInterval),
	}

	go rl.cleanupLimiters()

	return rl
}

func (rl *RateLimiter) cleanupLimiters() {
	for range rl.cleanup.C {
		rl.mu.Lock()
		for key, limiter := range rl.limiters {
			if limiter.Allow() {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limiter, exists = rl.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rl.rate, rl.burst)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// clientKey is the peer address, or the proxy-reported client when trustProxy
// is set.
func (srl *StrictRateLimiter) clientKey(r *http.Request) string {
	if srl.trustProxy {
		return GetClientIP(r)
	}
	return PeerIP(r)
}

type StrictRateLimiter struct {
	loginLimiter    *RateLimiter
	registerLimiter *RateLimiter
	refreshLimiter  *RateLimiter
	logoutLimiter   *RateLimiter
	checkInLimiter  *RateLimiter
	statusLimiter   *RateLimiter
	generalLimiter  *RateLimiter
	trustProxy      bool
}

// NewStrictRateLimiter builds the per-route limiters. trustProxy makes
// X-Real-IP and X-Forwarded-For count as the client address.
func NewStrictRateLimiter(trustProxy bool) *StrictRateLimiter {
	return &StrictRateLimiter{
		loginLimiter:    NewRateLimiter(constants.RateLimitLoginRequestsPerSecond, constants.RateLimitLoginBurst),
		registerLimiter: NewRateLimiter(constants.RateLimitRegisterRequestsPerSecond, constants.RateLimitRegisterBurst),
		refreshLimiter:  NewRateLimiter(constants.RateLimitRefreshRequestsPerSecond, constants.RateLimitRefreshBurst),
		logoutLimiter:   NewRateLimiter(constants.RateLimitLogoutRequestsPerSecond, constants.RateLimitLogoutBurst),
		checkInLimiter:  NewRateLimiter(constants.RateLimitCheckInRequestsPerSecond, constants.RateLimitCheckInBurst),
		statusLimiter:   NewRateLimiter(constants.RateLimitStatusRequestsPerSecond, constants.RateLimitStatusBurst),
		generalLimiter:  NewRateLimiter(constants.RateLimitGeneralRequestsPerSecond, constants.RateLimitGeneralBurst),
		trustProxy:      trustProxy,
	}
}

// MiddlewareForPath picks the limiter for path. Status reads and streams are
// keyed by their prefix so per-username paths share one metrics label.
func (srl *StrictRateLimiter) MiddlewareForPath(path string) func(http.Handler) http.Handler {
	var limiter *RateLimiter
	var limiterType string
	route := path

	switch {
	case path == "/api/login":
		limiter = srl.loginLimiter
		limiterType = "login"
	case path == "/api/register":
		limiter = srl.registerLimiter
		limiterType = "register"
	case path == "/api/refresh":
		limiter = srl.refreshLimiter
		limiterType = "refresh"
	case path == "/api/logout":
		limiter = srl.logoutLimiter
		limiterType = "logout"
	case path == "/api/check-in":
		limiter = srl.checkInLimiter
		limiterType = "checkin"
	case strings.HasPrefix(path, "/api/status/"):
		limiter = srl.statusLimiter
		limiterType = "status"
		route = "/api/status/"
	case strings.HasPrefix(path, "/ws/status/"):
		limiter = srl.statusLimiter
		limiterType = "status"
		route = "/ws/status/"
	default:
		limiter = srl.generalLimiter
		limiterType = "general"
		route = "other"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := srl.clientKey(r)

			if !limiter.Allow(key) {
				metrics.RateLimitBlocked.WithLabelValues(route, limiterType).Inc()
				WriteErrorEnvelope(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", nil, "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Middleware applies MiddlewareForPath per request and leaves health checks
// and metrics scrapes unlimited.
func (srl *StrictRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		srl.MiddlewareForPath(path)(next).ServeHTTP(w, r)
	})
}
