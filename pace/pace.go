// Package pace provides the waits inserted between simulated user actions.
package pace

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Delayer pauses for a duration drawn from [min, max].
// Implementations return early with ctx.Err() when ctx is cancelled.
type Delayer interface {
	Pause(ctx context.Context, min, max time.Duration) error
}

// Random pauses for a uniformly distributed duration.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom returns a Random delayer. A zero seed picks a random one.
func NewRandom(seed uint64) *Random {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Random{rnd: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// Duration draws a duration from [min, max]. Swapped bounds are reordered.
func (r *Random) Duration(min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	if max == min {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + time.Duration(r.rnd.Int64N(int64(max-min)+1))
}

// Pause implements Delayer.
func (r *Random) Pause(ctx context.Context, min, max time.Duration) error {
	return Sleep(ctx, r.Duration(min, max))
}

// None never waits.
type None struct{}

// Pause implements Delayer.
func (None) Pause(ctx context.Context, _, _ time.Duration) error {
	return ctx.Err()
}

// Span is one requested pause.
type Span struct {
	Min, Max time.Duration
}

// Recorder records requested pauses without waiting.
type Recorder struct {
	mu    sync.Mutex
	spans []Span
}

// Pause implements Delayer.
func (r *Recorder) Pause(ctx context.Context, min, max time.Duration) error {
	r.mu.Lock()
	r.spans = append(r.spans, Span{Min: min, Max: max})
	r.mu.Unlock()
	return ctx.Err()
}

// Spans returns a copy of the recorded pauses.
func (r *Recorder) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Span(nil), r.spans...)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
