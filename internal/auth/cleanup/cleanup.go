package cleanup

import (
	"context"
	"time"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
)

type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// StartRefreshTokenCleanup deletes expired refresh tokens every interval until
// ctx is done. A non-positive interval uses the default.
func StartRefreshTokenCleanup(ctx context.Context, repo ExpiredDeleter, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = constants.RefreshTokenCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, repo, log)
		}
	}
}

func runOnce(ctx context.Context, repo ExpiredDeleter, log *logger.Logger) {
	deleted, err := repo.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Errorf("refresh token cleanup failed: %v", err)
		}
		return
	}
	if deleted > 0 {
		metrics.RefreshTokensCleanupDeleted.Add(float64(deleted))
		log.Infof("refresh token cleanup: deleted %d expired tokens", deleted)
	}
}
