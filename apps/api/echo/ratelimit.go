package echoapi

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter tracks per-IP token bucket limiters.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

// newRateLimiter returns a middleware limiting each client IP to rps requests per second,
// with bursts of up to burst requests. Idle visitors are forgotten until ctx is done.
func newRateLimiter(ctx context.Context, rps rate.Limit, burst int) echo.MiddlewareFunc {
	rl := &rateLimiter{visitors: make(map[string]*visitor), rps: rps, burst: burst}
	go rl.cleanupLoop(ctx)
	return rl.handle
}

func (rl *rateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *rateLimiter) handle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !rl.getVisitor(ctx.RealIP()).Allow() {
			return errTooManyRequests
		}
		return next(ctx)
	}
}

// cleanupLoop removes visitors that haven't been seen for 3 minutes.
func (rl *rateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}
