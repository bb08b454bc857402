package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Pool hands out one token bucket per key (model id, host).
type Pool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewPool() *Pool {
	return &Pool{limiters: make(map[string]*rate.Limiter)}
}

// PerMinute returns the limiter for key, creating it with rpm requests per
// minute and a burst of max(1, rpm/5). rpm <= 0 means unlimited.
func (p *Pool) PerMinute(key string, rpm int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[key]; ok {
		return l
	}
	var l *rate.Limiter
	if rpm <= 0 {
		l = rate.NewLimiter(rate.Inf, 1)
	} else {
		burst := rpm / 5
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	}
	p.limiters[key] = l
	return l
}

// Wait blocks until key may proceed or ctx ends.
func (p *Pool) Wait(ctx context.Context, key string, rpm int) error {
	return p.PerMinute(key, rpm).Wait(ctx)
}
