package server

import (
	"sync"
	"time"

	"github.com/heimdall-dns/heimdall/internal/infrastructure/metrics"
)

// globalBucket is the same token-bucket algorithm as bucket, but
// unkeyed: a single shared allowance checked ahead of the per-IP tier.
// Exceeding it drops the query irrespective of the per-IP budget.
type globalBucket struct {
	mu     sync.Mutex
	tokens float64
	rate   float64
	burst  int
	last   time.Time
}

func newGlobalBucket(rate float64, burst int) *globalBucket {
	return &globalBucket{tokens: float64(burst), rate: rate, burst: burst, last: time.Now()}
}

func (g *globalBucket) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(g.last).Seconds()
	g.last = now

	g.tokens += elapsed * g.rate
	if g.tokens > float64(g.burst) {
		g.tokens = float64(g.burst)
	}
	if g.tokens >= 1 {
		g.tokens--
		return true
	}
	return false
}

// admission is the two-tier admission-control gate in front of the
// query pipeline: a global token bucket, then a per-IP token bucket,
// then a bounded concurrency semaphore that gates all inbound
// transports (UDP, TCP, DoT/DoH share the same Server). It wraps the
// existing single-tier rateLimiter rather than replacing it, so the
// per-IP behavior (and its tests) keep working unchanged.
type admission struct {
	global *globalBucket
	perIP  *rateLimiter
	sem    chan struct{}
}

// newAdmission builds the gate. maxConcurrent <= 0 disables the
// semaphore tier (unbounded concurrency) for anyone who doesn't
// configure a limit.
func newAdmission(globalRate float64, globalBurst int, perIPRate float64, perIPBurst, maxRateLimitEntries, maxConcurrent int) *admission {
	a := &admission{
		global: newGlobalBucket(globalRate, globalBurst),
		perIP:  newRateLimiterWithCap(perIPRate, perIPBurst, maxRateLimitEntries),
	}
	if maxConcurrent > 0 {
		a.sem = make(chan struct{}, maxConcurrent)
	}
	return a
}

// Admit checks the global tier, then the per-IP tier. It does not
// touch the concurrency semaphore; callers that accept the query then
// call TryEnter/Leave around the work itself.
func (a *admission) Admit(ip string) bool {
	if !a.global.Allow() {
		metrics.RateLimitRejections.WithLabelValues("global").Inc()
		return false
	}
	if !a.perIP.Allow(ip) {
		metrics.RateLimitRejections.WithLabelValues("per_ip").Inc()
		return false
	}
	return true
}

// TryEnter attempts to acquire a concurrency slot without blocking. If
// the semaphore tier is disabled it always succeeds. Callers must call
// Leave exactly once for every TryEnter that returns true.
func (a *admission) TryEnter() bool {
	if a.sem == nil {
		return true
	}
	select {
	case a.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Leave releases a concurrency slot acquired by TryEnter.
func (a *admission) Leave() {
	if a.sem == nil {
		return
	}
	<-a.sem
}

// RecordResponse forwards to the per-IP tier's response-rate tracking.
func (a *admission) RecordResponse(ip string, rcode uint8) {
	a.perIP.RecordResponse(ip, rcode)
}

// Cleanup forwards to the per-IP tier's idle-bucket GC.
func (a *admission) Cleanup() {
	a.perIP.Cleanup()
}
