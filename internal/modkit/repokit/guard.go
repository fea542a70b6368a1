package repokit

import (
	"context"
	"fmt"
	"time"
)

// Guarder checks the stores a binary was configured with
type Guarder interface {
	Guard(context.Context) error
}

// MustGuard panics unless every configured store answers within timeout.
// A zero timeout keeps the caller's deadline
func MustGuard(ctx context.Context, g Guarder, timeout time.Duration) {
	if g == nil {
		panic("repokit: nil guard")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := g.Guard(ctx); err != nil {
		panic(fmt.Errorf("store guard: %w", err))
	}
}
