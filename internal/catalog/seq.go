package catalog

import "context"

// Each returns the Seq that applies fn to items in order, yielding one Progress
// after every completed item. The first error (including context cancellation
// observed between items) is yielded and ends the sequence. No work starts
// until the caller ranges over the result.
func Each(ctx context.Context, items []string, fn func(ctx context.Context, item string) error) Seq {
	return func(yield func(Progress, error) bool) {
		total := len(items)
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				yield(Progress{}, err)
				return
			}
			if err := fn(ctx, item); err != nil {
				yield(Progress{}, err)
				return
			}
			if !yield(Progress{Done: i + 1, Total: total}, nil) {
				return
			}
		}
	}
}

// Fail returns a Seq that yields err once. Backends use it when an operation
// cannot start at all.
func Fail(err error) Seq {
	return func(yield func(Progress, error) bool) {
		yield(Progress{}, err)
	}
}

// Drain consumes seq and returns the number of completed items.
func Drain(seq Seq) (int, error) {
	done := 0
	for p, err := range seq {
		if err != nil {
			return done, err
		}
		done = p.Done
	}
	return done, nil
}

// Collect consumes seq and returns every Progress it produced.
func Collect(seq Seq) ([]Progress, error) {
	var out []Progress
	for p, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}
