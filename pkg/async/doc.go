// Package async runs best-effort background work without letting it
// endanger the caller.
//
// SafeGo wraps a goroutine with panic recovery and a deadline. The facade
// uses it to append audit events off the decision path: denials and quota
// consumption are recorded, but a slow or crashing sink never delays or
// fails an authorization answer.
package async
