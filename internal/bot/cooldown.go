package bot

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown rate limits keys (users, or user+command pairs) to one action
// per interval.
type Cooldown struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewCooldown creates a Cooldown allowing one action per interval per key.
func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Check consumes the key's slot at now. It returns zero when the action may
// proceed, or how long the caller has to wait.
func (c *Cooldown) Check(key string, now time.Time) time.Duration {
	c.mu.Lock()
	interval := c.interval
	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		c.limiters[key] = lim
	}
	c.mu.Unlock()

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return interval
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	return 0
}

// SetInterval changes the interval and forgets every tracked key.
func (c *Cooldown) SetInterval(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = interval
	c.limiters = make(map[string]*rate.Limiter)
}

// Interval returns the time between allowed actions.
func (c *Cooldown) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Prune drops limiters that are back to a full slot at now, which behave
// exactly like a fresh limiter. It returns how many were dropped.
func (c *Cooldown) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, lim := range c.limiters {
		if lim.TokensAt(now) >= 1 {
			delete(c.limiters, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limiters)
}

// pruneLoop prunes every cooldown on each tick until ctx is done.
func (b *Bot) pruneLoop(ctx context.Context, every time.Duration, cooldowns ...*Cooldown) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dropped := 0
			for _, c := range cooldowns {
				dropped += c.Prune(now)
			}
			if dropped > 0 {
				b.logDebug("pruned idle cooldowns", "count", dropped)
			}
		}
	}
}
