package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Clock is the time source for a run. Sleep returns early with ctx.Err()
// when the context is done.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delays supplies the waits of the per-account loop.
type Delays interface {
	Typing() time.Duration
	Pacing() time.Duration
	Cooldown() time.Duration
}

// Timing holds the delay ranges of a run.
type Timing struct {
	TypingMin time.Duration
	TypingMax time.Duration
	PacingMin time.Duration
	PacingMax time.Duration
	Cooldown  time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		TypingMin: 3 * time.Second,
		TypingMax: 15 * time.Second,
		PacingMin: 30 * time.Second,
		PacingMax: 300 * time.Second,
		Cooldown:  60 * time.Second,
	}
}

// RandomDelays draws typing and pacing delays uniformly from their ranges.
// It is safe for use by concurrent account loops.
type RandomDelays struct {
	timing Timing

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomDelays(t Timing, seed int64) *RandomDelays {
	return &RandomDelays{timing: t, rnd: rand.New(rand.NewSource(seed))}
}

func (r *RandomDelays) Typing() time.Duration {
	return r.between(r.timing.TypingMin, r.timing.TypingMax)
}

func (r *RandomDelays) Pacing() time.Duration {
	return r.between(r.timing.PacingMin, r.timing.PacingMax)
}

func (r *RandomDelays) Cooldown() time.Duration { return r.timing.Cooldown }

func (r *RandomDelays) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	n := r.rnd.Int63n(int64(hi - lo))
	r.mu.Unlock()
	return lo + time.Duration(n)
}
