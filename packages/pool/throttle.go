package pool

import (
	"context"

	"golang.org/x/time/rate"
)

// Limits bounds dispatch across all slots. Zero values mean unbounded.
type Limits struct {
	// MaxConcurrent caps requests in flight at once.
	MaxConcurrent int
	// Rate caps dispatches per second.
	Rate float64
	// Burst is the number of dispatches allowed above Rate at once. It
	// defaults to 1 when Rate is set.
	Burst int
}

// Unbounded reports whether l imposes no limit.
func (l Limits) Unbounded() bool {
	return l.MaxConcurrent <= 0 && l.Rate <= 0
}

// Throttle gates executor calls with a concurrency semaphore and a token
// bucket. It implements manager.Gate.
type Throttle struct {
	limiter *rate.Limiter
	sem     chan struct{} // semaphore for max concurrency
}

// NewThrottle returns nil for unbounded limits.
func NewThrottle(l Limits) *Throttle {
	if l.Unbounded() {
		return nil
	}

	t := &Throttle{}
	if l.Rate > 0 {
		burst := l.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(l.Rate), burst)
	}
	if l.MaxConcurrent > 0 {
		t.sem = make(chan struct{}, l.MaxConcurrent)
	}
	return t
}

// Acquire takes a concurrency slot, then waits for a rate token.
func (t *Throttle) Acquire(ctx context.Context) error {
	if t.sem != nil {
		select {
		case t.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			t.release()
			return err
		}
	}
	return nil
}

// Release returns the concurrency slot taken by Acquire.
func (t *Throttle) Release() {
	t.release()
}

func (t *Throttle) release() {
	if t.sem != nil {
		<-t.sem
	}
}

// InFlight is the number of held concurrency slots.
func (t *Throttle) InFlight() int {
	if t == nil || t.sem == nil {
		return 0
	}
	return len(t.sem)
}
