package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// RetryPolicy bounds retries of transient I/O errors.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// withRetry runs op up to p.Attempts times, doubling the wait after each
// failure. Errors rejected by retryable are returned immediately.
func withRetry(ctx context.Context, p RetryPolicy, op func() error, retryable func(error) bool) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := p.Backoff

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			l := log.Ctx(ctx)
			l.Debug().
				Int(log.FieldAttempt, attempt).
				Dur(log.FieldBackoff, backoff).
				Err(lastErr).
				Msg("retrying connection i/o")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isTransient reports whether err is a network timeout worth retrying.
func isTransient(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
