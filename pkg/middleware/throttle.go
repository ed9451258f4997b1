package middleware

import (
	"context"
	"sync"
	"time"

	"followpro/api/internal/service"
	"followpro/api/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ThrottleConfig struct {
	RequestsPerSecond int
	Burst             int
	CleanupInterval   time.Duration
	TTL               time.Duration
}

// Throttle is a coarse per-IP token bucket that sits in front of every route
type Throttle struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   ThrottleConfig
}

func NewThrottle(config ThrottleConfig) *Throttle {
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}
	if config.TTL == 0 {
		config.TTL = 3 * time.Minute
	}
	if config.Burst == 0 {
		config.Burst = config.RequestsPerSecond * 2
	}

	return &Throttle{visitors: make(map[string]*visitor), config: config}
}

func (t *Throttle) getVisitor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, exists := t.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(t.config.RequestsPerSecond), t.config.Burst)
		t.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup forgets idle visitors until ctx is done
func (t *Throttle) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(t.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			for ip, v := range t.visitors {
				if time.Since(v.lastSeen) > t.config.TTL {
					delete(t.visitors, ip)
				}
			}
			t.mu.Unlock()
		}
	}
}

func (t *Throttle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t.config.RequestsPerSecond <= 0 {
			c.Next()
			return
		}

		if !t.getVisitor(c.ClientIP()).Allow() {
			response.Error(c, service.ErrRateLimited)
			return
		}

		c.Next()
	}
}
