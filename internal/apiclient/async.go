package apiclient

import "context"

// Result carries the outcome of an operation run with Go.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn on its own goroutine and delivers exactly one Result on the
// returned channel, which is buffered so an abandoned caller never blocks the
// goroutine. Dropping the channel is the only way to discard the outcome;
// cancel ctx to abort the request itself.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}
