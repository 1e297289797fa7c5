package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"

	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
)

// extractTableFromOperation maps an operation name onto the table label used
// by the query metrics.
func extractTableFromOperation(operation string) string {
	op := strings.ToLower(operation)
	switch {
	case strings.Contains(op, "refresh"), strings.Contains(op, "token"):
		return "refresh_tokens"
	case strings.Contains(op, "user"), strings.Contains(op, "check in"):
		return "users"
	default:
		return "unknown"
	}
}

func HandleQueryError(err error, notFoundErr error, operation string, startTime time.Time) error {
	if errors.Is(err, pgx.ErrNoRows) && notFoundErr != nil {
		MeasureQueryDuration(operation, startTime)
		return notFoundErr
	}
	return HandleExecError(err, operation, startTime)
}

// HandleExecError records the query duration and, on failure, counts the error
// by SQLSTATE and wraps it with the operation name.
func HandleExecError(err error, operation string, startTime time.Time) error {
	table := MeasureQueryDuration(operation, startTime)
	if err == nil {
		return nil
	}
	metrics.DBQueryErrors.WithLabelValues(operation, table, errorKind(err)).Inc()
	return fmt.Errorf("failed to %s: %w", operation, err)
}

func MeasureQueryDuration(operation string, startTime time.Time) string {
	table := extractTableFromOperation(operation)
	metrics.DBQueryDurationSeconds.WithLabelValues(operation, table).Observe(time.Since(startTime).Seconds())
	return table
}

func errorKind(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		return "sqlstate_" + pgErr.Code
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
