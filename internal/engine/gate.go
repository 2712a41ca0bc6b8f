package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate bounds the number of in-flight requests of one fetcher and,
// optionally, their start rate.
type Gate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	size    int
}

// NewGate creates a gate admitting at most maxInFlight concurrent calls.
// rps > 0 additionally limits how many calls may start per second.
func NewGate(maxInFlight int, rps float64) *Gate {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxConcurrent
	}
	g := &Gate{sem: semaphore.NewWeighted(int64(maxInFlight)), size: maxInFlight}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return g
}

// Size returns the maximum number of in-flight calls.
func (g *Gate) Size() int { return g.size }

// Do runs fn once a slot is free.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}

// FanOut runs fn for every item under the gate and returns the outputs in completion order.
// The first error cancels the remaining calls and is returned together with the outputs
// collected so far.
func FanOut[T, R any](ctx context.Context, g *Gate, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	var mu sync.Mutex
	out := make([]R, 0, len(items))

	eg, ctx := errgroup.WithContext(ctx)
	for _, item := range items {
		eg.Go(func() error {
			return g.Do(ctx, func(ctx context.Context) error {
				r, err := fn(ctx, item)
				if err != nil {
					return err
				}
				mu.Lock()
				out = append(out, r)
				mu.Unlock()
				return nil
			})
		})
	}
	err := eg.Wait()
	return out, err
}
