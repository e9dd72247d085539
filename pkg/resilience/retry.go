package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

// RetryConfig controls the backoff schedule. Permanent marks errors that
// retrying cannot fix and defaults to IsPermanent.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Permanent    func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Permanent == nil {
		c.Permanent = IsPermanent
	}
	return c
}

// IsPermanent reports cancellation and client-side AppErrors (status < 500),
// such as an invalid corpus row, as not worth retrying.
func IsPermanent(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.StatusCode < 500
}

// Retry calls fn until it succeeds, MaxAttempts is reached, ctx is done, or
// fn fails permanently. Used for startup connections only.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	log := slog.Default().With("component", "retry", "operation", name)

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "attempts", attempt)
			}
			return nil
		}
		if cfg.Permanent(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}

		delay := cfg.backoff(attempt)
		log.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"next_delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}
	}
}

// backoff doubles InitialDelay per attempt up to MaxDelay and spreads the
// result by up to 10% either way.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.MaxDelay
	if shift := attempt - 1; shift < 32 {
		if next := c.InitialDelay << shift; next > 0 && next < c.MaxDelay {
			d = next
		}
	}
	spread := int64(d) / 10
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(2*spread+1)-spread)
}
