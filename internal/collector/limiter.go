package collector

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 按数据源名称限速：同一数据源两次调用之间至少间隔 interval
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait 为 source 取得一个调用许可
func (l *Limiter) Wait(ctx context.Context, source string) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}
	return l.get(source).Wait(ctx)
}

func (l *Limiter) get(source string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[source] = lim
	}
	return lim
}
