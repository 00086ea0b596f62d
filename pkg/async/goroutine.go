package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo runs fn in a goroutine with a bounded lifetime and panic recovery.
// The authorization hot path uses it for best-effort side work, audit
// appends in particular: a decision must never block on, or be taken down
// by, its bookkeeping.
//
// The child context inherits values from parentCtx (request ID, identity)
// but detaches from its cancellation, so an HTTP request finishing does not
// cut off the audit append it triggered.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic in %s: %v\n%s", taskName, r, debug.Stack())
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("background task %s failed: %v", taskName, err)
		}
	}()
}

// SafeGoNoError is SafeGo for functions with nothing to report
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
