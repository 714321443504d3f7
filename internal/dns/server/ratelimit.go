package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// rateLimiter implements a per-IP token bucket. maxEntries, when
// non-zero, is the catastrophic fallback: if the live bucket set grows
// past maxEntries*2 the whole map is cleared rather than letting an
// attacker's IP-spoofing flood grow it unbounded.
type rateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rate       float64 // tokens per second
	burst      int     // max tokens
	maxEntries int
}

type bucket struct {
	tokens         float64
	last           time.Time
	errorCount     int64
	nxdomainCount  int64
	totalResponses int64
}

func newRateLimiter(rate float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
}

// newRateLimiterWithCap additionally sizes the catastrophic-fallback
// threshold for the active-bucket set.
func newRateLimiterWithCap(rate float64, burst, maxEntries int) *rateLimiter {
	rl := newRateLimiter(rate, burst)
	rl.maxEntries = maxEntries
	return rl
}

func (rl *rateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.maxEntries > 0 && len(rl.buckets) > rl.maxEntries*2 {
		rl.buckets = make(map[string]*bucket)
	}

	b, exists := rl.buckets[ip]
	if !exists {
		b = &bucket{
			tokens: float64(rl.burst),
			last:   time.Now(),
		}
		rl.buckets[ip] = b
	}

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now

	// Refill
	b.tokens += elapsed * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}

	// Consume
	if b.tokens >= 1 {
		b.tokens--
		return true
	}

	return false
}

// RecordResponse tracks the per-IP error and NXDOMAIN response rates
// observed alongside the query token bucket.
func (rl *rateLimiter) RecordResponse(ip string, rcode uint8) {
	rl.mu.Lock()
	b, exists := rl.buckets[ip]
	if !exists {
		b = &bucket{tokens: float64(rl.burst), last: time.Now()}
		rl.buckets[ip] = b
	}
	rl.mu.Unlock()

	atomic.AddInt64(&b.totalResponses, 1)
	if rcode != 0 {
		atomic.AddInt64(&b.errorCount, 1)
	}
	if rcode == 3 {
		atomic.AddInt64(&b.nxdomainCount, 1)
	}
}

// ErrorRate returns the fraction of recorded responses to ip that were
// non-NOERROR, or 0 if nothing has been recorded yet.
func (rl *rateLimiter) ErrorRate(ip string) float64 {
	rl.mu.Lock()
	b, exists := rl.buckets[ip]
	rl.mu.Unlock()
	if !exists {
		return 0
	}
	total := atomic.LoadInt64(&b.totalResponses)
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&b.errorCount)) / float64(total)
}

// Cleanup removes old buckets to prevent memory leaks
func (rl *rateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, b := range rl.buckets {
		if now.Sub(b.last) > 10*time.Minute {
			delete(rl.buckets, ip)
		}
	}
}
