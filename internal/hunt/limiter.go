package hunt

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// adaptiveLimiter paces model calls. Each success raises the rate by 20%
// up to twice the configured rate; a 429 halves it down to a quarter.
type adaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	max     rate.Limit
	min     rate.Limit
	current rate.Limit
}

func newAdaptiveLimiter(requestsPerMinute int) *adaptiveLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 50
	}
	initial := rate.Limit(float64(requestsPerMinute) / 60)
	return &adaptiveLimiter{
		limiter: rate.NewLimiter(initial, 1),
		max:     initial * 2,
		min:     initial / 4,
		current: initial,
	}
}

func (a *adaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

func (a *adaptiveLimiter) onSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(min(a.current*1.2, a.max))
}

func (a *adaptiveLimiter) onRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(max(a.current*0.5, a.min))
	zap.L().Warn("hunt: rate limited, slowing down",
		zap.Float64("requests_per_second", float64(a.current)),
	)
}

func (a *adaptiveLimiter) set(r rate.Limit) {
	a.current = r
	a.limiter.SetLimit(r)
}

func (a *adaptiveLimiter) limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
