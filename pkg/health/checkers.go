package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when the backend cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// LastErrorCheck fails while any of the named sources reports an error.
// Sources are stores exposing the result of their latest write.
func LastErrorCheck(sources map[string]func() error) CheckFunc {
	return func(context.Context) error {
		var result error
		for name, errFn := range sources {
			if err := errFn(); err != nil {
				result = multierr.Append(result, errors.Wrap(err, name))
			}
		}
		return result
	}
}
