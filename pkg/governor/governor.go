// Package governor enforces the client-side ceilings each adapter owes its
// upstream API: fixed-window admission quotas per operation category, and a
// hard deadline on every outbound call.
package governor

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// window is one granularity's counter for one category.
type window struct {
	count int
	start time.Time
}

// Governor admits or rejects calls per operation category. Every configured
// quota applies to every category independently: a call is admitted only when
// all granularities have headroom, and an admission is charged to all of them.
type Governor struct {
	mu     sync.Mutex
	now    func() time.Time
	quotas []Quota
	state  map[string][]window
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock. Tests use this to step time explicitly.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// New builds a Governor over the given quotas.
func New(quotas []Quota, opts ...Option) (*Governor, error) {
	if len(quotas) == 0 {
		return nil, errors.New("governor: at least one quota required")
	}
	for _, q := range quotas {
		if q.Max <= 0 || q.Window <= 0 {
			return nil, fmt.Errorf("governor: invalid quota %s", q)
		}
	}
	g := &Governor{
		now:    time.Now,
		quotas: quotas,
		state:  make(map[string][]window),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check admits one call in the given category or rejects it with a
// *RateLimitError whose RetryAfter points at the slowest exhausted window.
//
// Counting is fixed-window: a window that has fully elapsed snaps back to
// zero on the next check instead of draining gradually, so a burst straddling
// the boundary can observe up to twice the quota across a short span. That
// trade is intentional; upstream billing works the same way. Rejected calls
// are not charged.
func (g *Governor) Check(category string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	ws, ok := g.state[category]
	if !ok {
		ws = make([]window, len(g.quotas))
		for i := range ws {
			ws[i] = window{start: now}
		}
		g.state[category] = ws
	}

	// Expire before judging. Strictly greater: at exactly one window of age
	// the counter still stands.
	for i := range ws {
		if now.Sub(ws[i].start) > g.quotas[i].Window {
			ws[i] = window{start: now}
		}
	}

	exhausted := false
	var retryAfter time.Duration
	for i := range ws {
		if ws[i].count >= g.quotas[i].Max {
			exhausted = true
			if wait := g.quotas[i].Window - now.Sub(ws[i].start); wait > retryAfter {
				retryAfter = wait
			}
		}
	}
	if exhausted {
		return &RateLimitError{Category: category, RetryAfter: retryAfter}
	}

	for i := range ws {
		ws[i].count++
	}
	return nil
}
