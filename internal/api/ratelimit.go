package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/volume-sync/vsc/internal/config"
)

// clientLimiter tracks one client's token bucket and its last use for
// eviction.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket to task submissions,
// keyed by the remote IP. A zero rate disables limiting.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter

	rps   rate.Limit
	burst int
}

// NewRateLimiter creates a limiter from the rate limit configuration.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(cfg.TasksPerSecond),
		burst:   cfg.Burst,
	}
}

// Allow reports whether the client identified by remoteAddr may proceed.
func (rl *RateLimiter) Allow(remoteAddr string) bool {
	if rl.rps == 0 {
		return true
	}

	key := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		key = host
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = time.Now()

	// Opportunistic eviction of idle clients.
	if len(rl.clients) > 1000 {
		cutoff := time.Now().Add(-10 * time.Minute)
		for k, c := range rl.clients {
			if c.lastSeen.Before(cutoff) {
				delete(rl.clients, k)
			}
		}
	}

	return cl.limiter.Allow()
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.RemoteAddr) {
			WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"Too many requests, retry later", nil)
			return
		}
		next(w, r)
	}
}
