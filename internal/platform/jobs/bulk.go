package jobs

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunBulk calls fn for each item with at most limit calls in flight.
// Results and item errors keep the order of items. When fatal reports an item
// error as fatal the remaining items are skipped with the context error and
// that error is returned.
func RunBulk[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error), fatal func(error) bool) ([]R, []error, error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			res, err := fn(gctx, item)
			if err != nil {
				errs[i] = err
				if fatal != nil && fatal(err) {
					return err
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	return results, errs, g.Wait()
}
