package enrich

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunAll runs every runner's pass concurrently. A failing pass does not stop
// the others; all errors are joined. Reports are returned in runner order.
func RunAll(ctx context.Context, runners ...*Runner) ([]Report, error) {
	reports := make([]Report, len(runners))
	var (
		mu   sync.Mutex
		errs []error
	)

	var eg errgroup.Group
	for i, r := range runners {
		eg.Go(func() error {
			rep, err := r.Run(ctx)
			reports[i] = rep
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return reports, errors.Join(errs...)
}
