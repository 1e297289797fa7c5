package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/AlibekovAA/safecheck/internal/common/logger"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// Connection loss, serialization failures, deadlocks and lock timeouts.
var retryableCodes = map[string]bool{
	"08000": true, "08001": true, "08003": true, "08004": true, "08006": true, "08007": true, "08P01": true,
	"40001": true, "40P01": true,
	"55P03": true,
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableCodes[pgErr.Code]
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// RetryWithBackoff runs operation up to MaxAttempts times with capped
// exponential backoff, retrying only transient Postgres failures.
func RetryWithBackoff(ctx context.Context, log *logger.Logger, config RetryConfig, operation func() error) error {
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := retry.NewExponential(config.InitialDelay)
	backoff = retry.WithCappedDuration(config.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	attempt := 0
	var lastErr error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := operation()
		if err == nil {
			if attempt > 1 && log != nil {
				log.Infof("database operation succeeded after %d attempts", attempt)
			}
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
		if log != nil && attempt < attempts {
			log.Warnf("database operation failed (attempt %d/%d): %v", attempt, attempts, err)
		}
		return retry.RetryableError(err)
	})
	switch {
	case err == nil:
		return nil
	case !isRetryableError(lastErr):
		return err
	case ctx.Err() != nil && attempt < attempts:
		return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
	default:
		return fmt.Errorf("database operation failed after %d attempts: %w", attempt, lastErr)
	}
}
