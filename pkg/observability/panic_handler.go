package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic in a deferred call and logs it at
// Error level with the full stack trace. The panic is not re-raised, so a
// misbehaving background job cannot take the authorization service down
// with it.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// RecoverPanicWithCallback recovers and logs like RecoverPanic, then runs
// callback so the caller can unblock waiters (close a result channel,
// release a lock, mark the sweep failed).
func RecoverPanicWithCallback(logger *Logger, context string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
		if callback != nil {
			callback()
		}
	}
}

// MustRecover converts a recovered panic value into an error, for code
// paths that surface failures through normal error returns:
//
//	defer func() { err = observability.MustRecover(recover()) }()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
