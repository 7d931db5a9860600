package uow

import "context"

// Direct runs fn without a database transaction, for stores whose single
// calls are already atomic (the in-memory store). Nested calls defer their
// hooks to the outermost Do, like UoW.
type Direct struct{}

func (Direct) Do(
	ctx context.Context,
	fn func(ctx context.Context, after func(AfterCommit)) error,
) error {
	if outer, ok := ctx.Value(hooksKey{}).(*[]AfterCommit); ok {
		return fn(ctx, func(h AfterCommit) {
			*outer = append(*outer, h)
		})
	}

	var hooks []AfterCommit

	inner := context.WithValue(ctx, hooksKey{}, &hooks)
	if err := fn(inner, func(h AfterCommit) {
		hooks = append(hooks, h)
	}); err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
