// Package ratelimit implements the token-bucket admission check of
// spec.md §4.C: one bucket per (scope, key) pair, refilled continuously
// and swept from memory after an idle window. It generalizes the
// teacher's internal/api/middleware.IPRateLimiter from an IP-only
// sync.Map of limiters to an arbitrary scope, and replaces the
// teacher's periodic full-wipe cleanup with a real idle-timestamp sweep
// since the spec requires buckets to survive across a burst and only
// expire after genuine inactivity.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scope names the two buckets the Admission Funnel checks in order
// (spec.md §4.C "checks two buckets in order").
type Scope string

const (
	ScopeIP   Scope = "ip"
	ScopeUser Scope = "user"
)

// Config holds the token-bucket parameters for one scope.
type Config struct {
	Capacity   float64
	RefillRate float64 // tokens per second
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter owns one bucket set per scope, keyed by (scope, identifier).
// Grounded on the teacher's IPRateLimiter: a sync.Map of limiters plus
// a background goroutine, extended to track last-access time per entry
// so idle buckets can be evicted individually.
type Limiter struct {
	mu      sync.Mutex
	buckets map[Scope]*sync.Map
	configs map[Scope]Config
	idleTTL time.Duration
	done    chan struct{}
}

// New builds a Limiter with one configuration per scope and starts the
// idle-eviction loop, mirroring the teacher's `go i.cleanupLoop()`.
func New(configs map[Scope]Config, idleTTL time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[Scope]*sync.Map, len(configs)),
		configs: configs,
		idleTTL: idleTTL,
		done:    make(chan struct{}),
	}
	for scope := range configs {
		l.buckets[scope] = &sync.Map{}
	}
	go l.cleanupLoop()
	return l
}

// Close stops the background sweep; used in tests and on shutdown.
func (l *Limiter) Close() {
	close(l.done)
}

func (l *Limiter) getEntry(scope Scope, key string) (*entry, error) {
	bucket, ok := l.buckets[scope]
	if !ok {
		return nil, fmt.Errorf("ratelimit: unconfigured scope %q", scope)
	}
	cfg := l.configs[scope]

	now := time.Now()
	if v, ok := bucket.Load(key); ok {
		e := v.(*entry)
		e.lastAccess = now
		return e, nil
	}
	e := &entry{
		limiter:    rate.NewLimiter(rate.Limit(cfg.RefillRate), int(cfg.Capacity)),
		lastAccess: now,
	}
	actual, _ := bucket.LoadOrStore(key, e)
	return actual.(*entry), nil
}

// Allow implements spec.md §4.C's admission check for a single bucket:
// "refill tokens, if tokens >= cost deduct and admit else deny".
// golang.org/x/time/rate.Limiter already implements exactly this
// continuous-refill token-bucket formula, so Allow just delegates.
func (l *Limiter) Allow(scope Scope, key string) (bool, time.Duration) {
	e, err := l.getEntry(scope, key)
	if err != nil {
		// Unconfigured scope admits by default rather than failing closed;
		// callers only pass scopes they configured.
		return true, 0
	}
	if e.limiter.Allow() {
		return true, 0
	}
	reservation := e.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			for scope, bucket := range l.buckets {
				bucket.Range(func(key, value any) bool {
					e := value.(*entry)
					if now.Sub(e.lastAccess) > l.idleTTL {
						bucket.Delete(key)
						slog.Debug("ratelimit bucket evicted", "scope", scope, "key", key)
					}
					return true
				})
			}
		}
	}
}
