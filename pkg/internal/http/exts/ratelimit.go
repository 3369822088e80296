package exts

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client ip.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (v *RateLimiter) getLimiter(ip string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	item, ok := v.limiters[ip]
	if !ok {
		item = &ipLimiter{limiter: rate.NewLimiter(v.rps, v.burst)}
		v.limiters[ip] = item
	}
	item.lastSeen = time.Now()
	return item.limiter
}

// Cleanup drops clients not seen within the window, returns how many were dropped.
func (v *RateLimiter) Cleanup(window time.Duration) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	var count int
	for ip, item := range v.limiters {
		if time.Since(item.lastSeen) > window {
			delete(v.limiters, ip)
			count++
		}
	}
	return count
}

func (v *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !v.getLimiter(c.IP()).Allow() {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, please try again later")
		}
		return c.Next()
	}
}
