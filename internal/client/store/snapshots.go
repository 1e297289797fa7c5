package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AlibekovAA/safecheck/internal/view"
)

var ErrSnapshotNotFound = errors.New("no cached status for username")

// CachedSnapshot is the last good public status fetched for a username.
type CachedSnapshot struct {
	view.Snapshot
	FetchedAt time.Time
}

type SnapshotRepository struct {
	db DBTX
}

func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save upserts snap unless a newer version is already cached.
func (r *SnapshotRepository) Save(ctx context.Context, snap view.Snapshot, fetchedAt time.Time) error {
	var last sql.NullString
	if snap.LastCheckInAt != nil {
		last = sql.NullString{String: formatTime(*snap.LastCheckInAt), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_snapshots
			(username, display_name, last_check_in_at, timeout_threshold, version, server_time, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			display_name = excluded.display_name,
			last_check_in_at = excluded.last_check_in_at,
			timeout_threshold = excluded.timeout_threshold,
			version = excluded.version,
			server_time = excluded.server_time,
			fetched_at = excluded.fetched_at
		WHERE excluded.version >= status_snapshots.version
	`, snap.Username, snap.DisplayName, last, snap.TimeoutThreshold, snap.Version,
		formatTime(snap.ServerTime), formatTime(fetchedAt))
	if err != nil {
		return fmt.Errorf("failed to save snapshot[%s]: %w", snap.Username, err)
	}
	return nil
}

func (r *SnapshotRepository) Get(ctx context.Context, username string) (CachedSnapshot, error) {
	var (
		c                     CachedSnapshot
		last                  sql.NullString
		serverTime, fetchedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT username, display_name, last_check_in_at, timeout_threshold, version, server_time, fetched_at
		FROM status_snapshots WHERE username = ?
	`, username).Scan(&c.Username, &c.DisplayName, &last, &c.TimeoutThreshold, &c.Version, &serverTime, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return CachedSnapshot{}, fmt.Errorf("failed to get snapshot[%s]: %w", username, err)
	}

	if last.Valid {
		t, err := parseTime(last.String)
		if err != nil {
			return CachedSnapshot{}, err
		}
		c.LastCheckInAt = &t
	}
	if c.ServerTime, err = parseTime(serverTime); err != nil {
		return CachedSnapshot{}, err
	}
	if c.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return CachedSnapshot{}, err
	}
	return c, nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, username string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM status_snapshots WHERE username = ?`, username); err != nil {
		return fmt.Errorf("failed to delete snapshot[%s]: %w", username, err)
	}
	return nil
}
