// Package result provides a two-variant outcome type used at the collection
// boundaries (fetch, provider calls, source runs) instead of loose value/error pairs.
package result

import "errors"

// ErrNilFailure replaces a nil error handed to Err so a failure is never lost.
var ErrNilFailure = errors.New("failure without a reason")

// Unit is the value carried by a Result that only signals success.
type Unit = struct{}

// Result holds either a value or the reason it could not be produced.
// The zero value is a successful Result holding T's zero value.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Result[T]{err: err}
}

// Of converts a (value, error) pair into a Result.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Result[T]{err: err}
	}
	return Result[T]{value: v}
}

// Done is the successful unit Result.
func Done() Result[Unit] {
	return Result[Unit]{}
}

func (r Result[T]) IsOk() bool  { return r.err == nil }
func (r Result[T]) IsErr() bool { return r.err != nil }

// Value returns the success value, or T's zero value for a failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure reason, or nil on success.
func (r Result[T]) Err() error { return r.err }

// Get unpacks the Result for early-return composition.
func (r Result[T]) Get() (T, error) {
	return r.value, r.err
}

// ValueOr returns the success value or def on failure.
func (r Result[T]) ValueOr(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}

// Map transforms a successful value and passes failures through.
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return Result[U]{value: f(r.value)}
}

// AndThen chains a fallible step after a successful one.
func AndThen[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return f(r.value)
}

// MapErr rewrites the failure reason, typically to add context.
func MapErr[T any](r Result[T], f func(error) error) Result[T] {
	if r.err == nil {
		return r
	}
	return Err[T](f(r.err))
}
