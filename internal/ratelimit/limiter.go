// Package ratelimit throttles MCP tool calls with per-key token buckets.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a per-key token bucket. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket size and initial token count
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter refilling at rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns limits for the simbatch MCP tools. Read-only
// tools are cheap; tools that rewrite an ensemble or scan a whole sweep
// are held back.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"simbatch_classify":    NewLimiter(1.0, 10),      // 60/minute, burst 10
		"simbatch_history":     NewLimiter(1.0, 10),      // 60/minute, burst 10
		"simbatch_progress":    NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"simbatch_check_seeds": NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"simbatch_consistency": NewLimiter(10.0/60.0, 2), // 10/minute, burst 2
		"simbatch_merge_runs":  NewLimiter(5.0/60.0, 1),  // 5/minute, burst 1
	}
}

// CheckLimit returns an error when tool has exhausted its limit. Tools
// without a limiter are never limited.
func CheckLimit(limiters ToolLimiters, tool string) error {
	l, ok := limiters[tool]
	if !ok {
		return nil
	}
	if !l.Allow(tool) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
	}
	return nil
}
