package adapter

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxCallerLimiters bounds the per-caller limiter map so unbounded caller
// churn cannot grow memory without limit. Oldest entries are evicted first.
const maxCallerLimiters = 10_000

// callerLimiter throttles inbound requests per caller, independently of the
// upstream quota governor. A zero per-second rate disables throttling.
type callerLimiter struct {
	mu       sync.Mutex
	perSec   int
	limiters map[string]*rate.Limiter
	order    []string
}

func newCallerLimiter(perSec int) *callerLimiter {
	return &callerLimiter{
		perSec:   perSec,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *callerLimiter) allow(caller string) bool {
	if c.perSec <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	lim, ok := c.limiters[caller]
	if !ok {
		if len(c.limiters) >= maxCallerLimiters {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.limiters, oldest)
		}
		lim = rate.NewLimiter(rate.Limit(c.perSec), c.perSec*2)
		c.limiters[caller] = lim
		c.order = append(c.order, caller)
	}
	return lim.Allow()
}
