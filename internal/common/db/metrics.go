package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
)

// StartPoolMetrics publishes pool gauges every interval until ctx is done.
func StartPoolMetrics(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	if interval <= 0 {
		interval = constants.DBPoolMetricsInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				recordPoolStats(pool.Stat())
			}
		}
	}()
}

func recordPoolStats(stats *pgxpool.Stat) {
	metrics.DBPoolAcquiredConnections.Set(float64(stats.AcquiredConns()))
	metrics.DBPoolIdleConnections.Set(float64(stats.IdleConns()))
	metrics.DBPoolMaxConnections.Set(float64(stats.MaxConns()))
	metrics.DBPoolTotalConnections.Set(float64(stats.TotalConns()))
}
