package collector

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between profile visits. The first Wait
// returns immediately; each later Wait returns no sooner than interval after
// the previous one.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer builds a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1), interval: interval}
}

// Interval returns the configured floor.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until the next visit is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	return nil
}
