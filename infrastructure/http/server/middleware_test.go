package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestLimiterPool_Allow(t *testing.T) {
	req := require.New(t)
	clock := clockwork.NewFakeClock()
	pool := newLimiterPool(clock, 1, 2)

	// Given a burst of two for u1
	req.True(pool.Allow("u1"))
	req.True(pool.Allow("u1"))

	// Then a third call in the same instant is refused, other users are not affected
	req.False(pool.Allow("u1"))
	req.True(pool.Allow("u2"))

	// When a second passes, one token is back
	clock.Advance(time.Second)
	req.True(pool.Allow("u1"))
	req.False(pool.Allow("u1"))
}

func TestLimiterPool_Evicts_Idle_Buckets(t *testing.T) {
	req := require.New(t)
	clock := clockwork.NewFakeClock()
	pool := newLimiterPool(clock, 1, 1)

	// Given many identities seen once
	for i := range 100 {
		req.True(pool.Allow(fmt.Sprintf("u%d", i)))
	}
	req.Len(pool.m, 100)

	// When only u0 keeps calling past the idle window
	clock.Advance(limiterIdleTTL / 2)
	req.True(pool.Allow("u0"))
	clock.Advance(limiterIdleTTL/2 + limiterSweepPeriod)
	req.True(pool.Allow("u0"))

	// Then the idle buckets are gone
	req.Len(pool.m, 1)
	req.Contains(pool.m, "u0")
}

func TestLimiterPool_Disabled(t *testing.T) {
	req := require.New(t)
	pool := newLimiterPool(clockwork.NewFakeClock(), 0, 0)
	for range 10 {
		req.True(pool.Allow("u1"))
	}
	req.Empty(pool.m)
}
