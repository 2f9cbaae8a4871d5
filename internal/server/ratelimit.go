package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clients idle for longer than staleAfter lose their bucket on the next sweep.
const (
	sweepInterval = 5 * time.Minute
	staleAfter    = 10 * time.Minute
)

// RateLimiter implements a token bucket rate limiter per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rate    rate.Limit
	burst   int
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive burst is
// raised to one.
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	if b < 1 {
		b = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   b,
		now:     time.Now,
	}
}

// GetLimiter returns the rate limiter for the provided IP.
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.clients[ip]
	if !exists {
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = rl.now()
	return c.limiter
}

// Limit rejects requests over the per-client budget with 429.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.GetLimiter(clientIP(r)).Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sweep removes clients not seen within maxIdle and returns how many
// were dropped.
func (rl *RateLimiter) Sweep(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	dropped := 0
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > maxIdle {
			delete(rl.clients, ip)
			dropped++
		}
	}
	return dropped
}

// sweepLoop sweeps stale clients until ctx is done.
func (rl *RateLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(staleAfter)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
