package gateway

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound calls with a client-wide limit and optional
// per-route limits. Routes are the labels produced by observability.RouteLabel.
type RateLimiter struct {
	global *rate.Limiter
	routes map[string]*rate.Limiter
	mu     sync.RWMutex
}

// NewRateLimiter creates a limiter. requestsPerSecond <= 0 means unlimited.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		global: rate.NewLimiter(limitFor(requestsPerSecond), burstFor(burst)),
		routes: make(map[string]*rate.Limiter),
	}
}

// SetRouteLimit configures a limit for one route.
func (rl *RateLimiter) SetRouteLimit(route string, requestsPerSecond float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.routes[route] = rate.NewLimiter(limitFor(requestsPerSecond), burstFor(burst))
}

// Wait blocks until a call to route may proceed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, route string) error {
	if err := rl.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit: %w", err)
	}
	if limiter := rl.route(route); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("route rate limit: %w", err)
		}
	}
	return nil
}

func (rl *RateLimiter) route(route string) *rate.Limiter {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.routes[route]
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func burstFor(b int) int {
	if b < 1 {
		return 1
	}
	return b
}
