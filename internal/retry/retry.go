// Package retry wraps remote operations with a bounded number of attempts and
// exponential backoff between them.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Defaults used by the scheduler for every device and status call.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second
)

// Invoker executes operations, retrying failures. The delay before retry n
// (0-based) is BaseDelay * 2^n. Backoff honours ctx, so an outer timeout can
// cut a retry sequence short.
type Invoker struct {
	Attempts  int
	BaseDelay time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, if set, is called before each backoff.
	OnRetry func(name string, attempt int, err error)

	logger *zap.Logger
}

// New creates an Invoker. Non-positive values fall back to the defaults.
func New(attempts int, baseDelay time.Duration, logger *zap.Logger) *Invoker {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		Attempts:  attempts,
		BaseDelay: baseDelay,
		Sleep:     sleepContext,
		logger:    logger,
	}
}

// Do runs op until it succeeds or the attempt budget is spent, returning the
// last failure in the latter case.
func (i *Invoker) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < i.Attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == i.Attempts-1 {
			break
		}

		delay := i.BaseDelay << attempt
		i.logger.Warn("retrying operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", i.Attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if i.OnRetry != nil {
			i.OnRetry(name, attempt+1, lastErr)
		}
		if err := i.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
		}
	}
	return lastErr
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, i *Invoker, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := i.Do(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
