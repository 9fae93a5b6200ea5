package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/wonny/fxcast/pkg/logger"
	"github.com/wonny/fxcast/pkg/redis"
)

// Limiter throttles the read-only API.
// 프로세스 내 토큰 버킷을 먼저 적용하고, Redis가 켜져 있으면 클라이언트별 공유 윈도우를 추가로 적용
type Limiter struct {
	local  *rate.Limiter
	shared *redis.RateLimiter
	rps    float64
	burst  int
	logger *logger.Logger
}

// NewLimiter creates a limiter allowing rps requests per second with the given burst.
// shared may be nil.
func NewLimiter(rps float64, burst int, shared *redis.RateLimiter, log *logger.Logger) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		local:  rate.NewLimiter(rate.Limit(rps), burst),
		shared: shared,
		rps:    rps,
		burst:  burst,
		logger: log,
	}
}

// Middleware rejects requests over the limit with 429
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.local.Allow() {
			tooMany(w)
			return
		}

		if l.shared != nil {
			cfg := redis.PerSecond("api:"+clientIP(r), l.rps, l.burst)
			allowed, remaining, err := l.shared.Allow(r.Context(), cfg)
			if err != nil {
				// Redis 장애 시 로컬 제한만 적용
				l.logger.WithError(err).Warn("Shared rate limit check failed")
			} else {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
				if !allowed {
					tooMany(w)
					return
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

func tooMany(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "rate limit exceeded",
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
