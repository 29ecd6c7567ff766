package taskgen

import (
	"context"
	"math/rand/v2"
	"time"
)

// LatencyProfile describes a simulated round trip: a fixed base delay plus
// a uniformly distributed jitter in [0, Jitter).
type LatencyProfile struct {
	Base   time.Duration
	Jitter time.Duration
}

var (
	DescriptionLatency = LatencyProfile{Base: 1000 * time.Millisecond, Jitter: 2000 * time.Millisecond}
	ChecklistLatency   = LatencyProfile{Base: 800 * time.Millisecond, Jitter: 1500 * time.Millisecond}
)

// Max is the exclusive upper bound of the profile.
func (p LatencyProfile) Max() time.Duration {
	return p.Base + p.Jitter
}

func (p LatencyProfile) draw(rng *rand.Rand) time.Duration {
	if p.Jitter <= 0 {
		return p.Base
	}
	return p.Base + time.Duration(rng.Int64N(int64(p.Jitter)))
}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
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
