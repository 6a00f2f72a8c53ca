package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/novaline-edu/enrollgate/internal/ratelimit"
)

func newTestLimiter() *ratelimit.Limiter {
	return ratelimit.New(map[ratelimit.Scope]ratelimit.Config{
		ratelimit.ScopeIP:   {Capacity: 2, RefillRate: 1},
		ratelimit.ScopeUser: {Capacity: 1, RefillRate: 1},
	}, time.Minute)
}

func TestLimiter_AllowsUpToCapacityThenDenies(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	ok, _ := l.Allow(ratelimit.ScopeIP, "1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow(ratelimit.ScopeIP, "1.2.3.4")
	assert.True(t, ok)

	ok, wait := l.Allow(ratelimit.ScopeIP, "1.2.3.4")
	assert.False(t, ok, "third request within the burst window should be denied")
	assert.Greater(t, wait, time.Duration(0))
}

func TestLimiter_BucketsAreIndependentPerKey(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	l.Allow(ratelimit.ScopeIP, "1.2.3.4")
	l.Allow(ratelimit.ScopeIP, "1.2.3.4")
	ok, _ := l.Allow(ratelimit.ScopeIP, "5.6.7.8")
	assert.True(t, ok, "a different key gets its own bucket")
}

func TestLimiter_BucketsAreIndependentPerScope(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	ok, _ := l.Allow(ratelimit.ScopeUser, "42")
	assert.True(t, ok)
	ok, _ = l.Allow(ratelimit.ScopeUser, "42")
	assert.False(t, ok, "user scope has its own, smaller capacity")

	ok, _ = l.Allow(ratelimit.ScopeIP, "1.2.3.4")
	assert.True(t, ok, "exhausting the user bucket doesn't touch the IP bucket")
}

func TestLimiter_UnconfiguredScopeAdmitsByDefault(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	ok, wait := l.Allow(ratelimit.Scope("unused"), "anything")
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), wait)
}
