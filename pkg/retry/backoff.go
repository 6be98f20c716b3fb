package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config bounds one retried operation: up to MaxRetries attempts with
// exponentially growing delays between them.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultConfig is tuned for third-party data sources, which rate-limit
// aggressively but recover within seconds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying: a missing resource or a
// malformed document will not improve on the next attempt. WithBackoff
// strips the marker and returns the underlying error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithBackoff runs fn until it succeeds, fails permanently, or the attempt
// budget is spent. Jitter spreads the retries of concurrent tasks hitting
// the same rate-limited source.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("%s: %w", operation, perm.err)
		}
		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}

		wait := delay
		if cfg.Jitter {
			wait += time.Duration((rand.Float64() - 0.5) * 0.3 * float64(delay))
		}

		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", cfg.MaxRetries),
			zap.Duration("retryIn", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
