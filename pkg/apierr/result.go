package apierr

// Result carries the outcome of a best-effort call. The failure is visible to
// the caller but never forces handling: a zero Value with Err set is normal.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a failure.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }
