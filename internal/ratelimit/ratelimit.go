// Package ratelimit gives the rate-limited-source set (§4.2's
// rate_limited_sources, I5's stickiness rule) a cross-process home and adds
// a per-source token-bucket limiter in front of outbound adapter calls.
// Grounded on the teacher's internal/queue/producer.go redis.Client usage
// (same client type, same XAdd-style "fire a command, wrap the error"
// idiom) generalized from a stream producer to a cooldown set.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const keyPrefix = "researchagent:rate_limited_source:"

// CooldownSet is the cross-process mirror of runctx.Context's in-memory
// rate_limited_sources set (I5). A single-process run never needs this —
// runctx already guards the in-memory set with a mutex — but a fleet of
// workers sharing one run needs the stickiness to hold across processes.
type CooldownSet struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCooldownSet(client *redis.Client, cooldown time.Duration) *CooldownSet {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &CooldownSet{client: client, ttl: cooldown}
}

// Mark sticks sourceID for the configured cooldown window, mirroring I5.
func (s *CooldownSet) Mark(ctx context.Context, runID, sourceID string) error {
	if err := s.client.Set(ctx, s.key(runID, sourceID), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("mark source rate-limited (run=%s source=%s): %w", runID, sourceID, err)
	}
	return nil
}

// IsMarked reports whether sourceID is still within its cooldown window.
func (s *CooldownSet) IsMarked(ctx context.Context, runID, sourceID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(runID, sourceID)).Result()
	if err != nil {
		return false, fmt.Errorf("check rate-limited source (run=%s source=%s): %w", runID, sourceID, err)
	}
	return n > 0, nil
}

func (s *CooldownSet) key(runID, sourceID string) string {
	return keyPrefix + runID + ":" + sourceID
}

// Limiters is a per-source token-bucket limiter registry, complementing the
// cooldown set: a source that hasn't tripped rate-limit yet is still paced
// at its configured queries-per-second so the Saturator doesn't trip it.
type Limiters struct {
	perSecond map[string]*rate.Limiter
	fallback  *rate.Limiter
}

// NewLimiters builds one token bucket per source_id -> queries-per-second,
// falling back to defaultPerSecond for any source without a specific entry.
func NewLimiters(perSourceRPS map[string]float64, defaultPerSecond float64) *Limiters {
	if defaultPerSecond <= 0 {
		defaultPerSecond = 1
	}
	limiters := make(map[string]*rate.Limiter, len(perSourceRPS))
	for sourceID, rps := range perSourceRPS {
		limiters[sourceID] = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Limiters{
		perSecond: limiters,
		fallback:  rate.NewLimiter(rate.Limit(defaultPerSecond), 1),
	}
}

// Wait blocks until sourceID's bucket has a token, or ctx is cancelled.
func (l *Limiters) Wait(ctx context.Context, sourceID string) error {
	limiter, ok := l.perSecond[sourceID]
	if !ok {
		limiter = l.fallback
	}
	return limiter.Wait(ctx)
}
