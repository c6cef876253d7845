package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Budget caps how many calls a paid service receives within a window.
// A zero max means unlimited.
type Budget struct {
	mu        sync.Mutex
	name      string
	used      int
	max       int
	window    time.Duration
	resetTime time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// NewBudget allows max calls per window. A zero window never resets.
func NewBudget(name string, max int, window time.Duration, logger *slog.Logger) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Budget{
		name:   name,
		max:    max,
		window: window,
		now:    time.Now,
		logger: logger,
	}
	if window > 0 {
		b.resetTime = b.now().Add(window)
	}
	return b
}

// Allow reports whether another call fits in the budget without using it.
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	return b.max <= 0 || b.used < b.max
}

// Use consumes one call, failing when the budget is spent.
func (b *Budget) Use() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	if b.max > 0 && b.used >= b.max {
		b.logger.Warn("rate limit reached", "service", b.name, "used", b.used, "limit", b.max)
		return fmt.Errorf("%s rate limit exceeded", b.name)
	}
	b.used++
	b.logger.Debug("rate limit usage", "service", b.name, "used", b.used, "limit", b.max)
	return nil
}

// Reset clears the usage counter.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
	if b.window > 0 {
		b.resetTime = b.now().Add(b.window)
	}
}

func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"service":    b.name,
		"used":       b.used,
		"limit":      b.max,
		"reset_time": b.resetTime,
	}
}

// checkReset resets counters if reset time has passed
func (b *Budget) checkReset() {
	if b.window <= 0 || !b.now().After(b.resetTime) {
		return
	}
	b.logger.Info("resetting rate limiter", "service", b.name, "used", b.used)
	b.used = 0
	b.resetTime = b.now().Add(b.window)
}
