package persistence

import "context"

type hookKey struct{}

// hookCollector accumulates callbacks to run after a successful commit.
type hookCollector struct {
	hooks []func()
}

// NewTxContext attaches an after-commit hook collector. Called by the
// transaction runner before invoking the body.
func NewTxContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, hookKey{}, &hookCollector{})
}

// AfterCommit registers fn to run once the surrounding transaction commits.
// Outside any transaction the function runs immediately, which keeps callers
// like cache eviction correct in both modes.
func AfterCommit(ctx context.Context, fn func()) {
	if c, ok := ctx.Value(hookKey{}).(*hookCollector); ok {
		c.hooks = append(c.hooks, fn)
		return
	}
	fn()
}

// RunAfterCommitHooks fires the collected hooks. Called by the transaction
// runner strictly after a successful commit.
func RunAfterCommitHooks(ctx context.Context) {
	if c, ok := ctx.Value(hookKey{}).(*hookCollector); ok {
		for _, fn := range c.hooks {
			fn()
		}
		c.hooks = nil
	}
}
