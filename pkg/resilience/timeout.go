package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

// WithTimeout runs fn under a deadline and reports an expired deadline as
// ErrTimeout. If fn ignores its context it keeps running in the background
// and its result is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(deadlineCtx) }()

	select {
	case err := <-result:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return timedOut(name, timeout)
		}
		return err
	case <-deadlineCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return timedOut(name, timeout)
	}
}

func timedOut(name string, limit time.Duration) error {
	return apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout, "%s did not finish within %s", name, limit)
}
