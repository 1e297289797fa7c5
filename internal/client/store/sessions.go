package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one signed-in account, stored under a local name so that several
// accounts can be used from the same machine.
type Session struct {
	Name             string
	Username         string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	UpdatedAt        time.Time
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(ctx context.Context, name string) (Session, error) {
	var (
		s                  Session
		expires, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT name, username, access_token, refresh_token, refresh_expires_at, updated_at
		FROM sessions WHERE name = ?
	`, name).Scan(&s.Name, &s.Username, &s.AccessToken, &s.RefreshToken, &expires, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session[%s]: %w", name, err)
	}

	if s.RefreshExpiresAt, err = parseTime(expires); err != nil {
		return Session{}, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *SessionRepository) Save(ctx context.Context, s Session) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (name, username, access_token, refresh_token, refresh_expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			username = excluded.username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			refresh_expires_at = excluded.refresh_expires_at,
			updated_at = excluded.updated_at
	`, s.Name, s.Username, s.AccessToken, s.RefreshToken, formatTime(s.RefreshExpiresAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save session[%s]: %w", s.Name, err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete session[%s]: %w", name, err)
	}
	return nil
}

func (r *SessionRepository) List(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, username, access_token, refresh_token, refresh_expires_at, updated_at
		FROM sessions ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		var (
			s                  Session
			expires, updatedAt string
		)
		if err := rows.Scan(&s.Name, &s.Username, &s.AccessToken, &s.RefreshToken, &expires, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if s.RefreshExpiresAt, err = parseTime(expires); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return result, nil
}
