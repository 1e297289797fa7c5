package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/safecheck/internal/common/db"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/user/domain"
)

type Repository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	FindByID(ctx context.Context, id domain.ID) (domain.User, error)
	CheckIn(ctx context.Context, id domain.ID) (domain.CheckInResult, error)
	UpdateThreshold(ctx context.Context, id domain.ID, seconds int) (domain.User, error)
	UpdateProfile(ctx context.Context, id domain.ID, update domain.ProfileUpdate) (domain.User, error)
}

var (
	ErrUserNotFound          = commonerrors.ErrUserNotFound
	ErrUsernameAlreadyExists = commonerrors.ErrUsernameAlreadyExists
)

const userColumns = `id, username, password_hash, display_name,
	COALESCE(contact1_name, ''), COALESCE(contact1_phone, ''),
	COALESCE(contact2_name, ''), COALESCE(contact2_phone, ''),
	last_check_in_at, timeout_threshold, version, created_at`

// rowQuerier is the part of pgxpool.Pool the user queries need.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PgRepository struct {
	q     rowQuerier
	log   *logger.Logger
	retry db.RetryConfig
}

func NewPgRepository(pool *pgxpool.Pool, log *logger.Logger) *PgRepository {
	return &PgRepository{q: pool, log: log, retry: db.DefaultRetryConfig}
}

func (r *PgRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	start := time.Now()
	row := r.q.QueryRow(
		ctx,
		`INSERT INTO users (id, username, password_hash, display_name,
			contact1_name, contact1_phone, contact2_name, contact2_phone,
			last_check_in_at, timeout_threshold)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULL, $9)
		 RETURNING `+userColumns,
		string(user.ID),
		user.Username,
		user.PasswordHash,
		user.DisplayName,
		user.Contacts.Contact1Name,
		user.Contacts.Contact1Phone,
		user.Contacts.Contact2Name,
		user.Contacts.Contact2Phone,
		user.TimeoutThreshold,
	)

	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			db.MeasureQueryDuration("create user", start)
			return domain.User{}, ErrUsernameAlreadyExists
		}
		return domain.User{}, db.HandleQueryError(err, ErrUserNotFound, "create user", start)
	}
	db.MeasureQueryDuration("create user", start)
	return created, nil
}

func (r *PgRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	var user domain.User
	err := db.RetryWithBackoff(ctx, r.log, r.retry, func() error {
		start := time.Now()
		row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
		var err error
		user, err = scanUser(row)
		return db.HandleQueryError(err, ErrUserNotFound, "find user by username", start)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *PgRepository) FindByID(ctx context.Context, id domain.ID) (domain.User, error) {
	var user domain.User
	err := db.RetryWithBackoff(ctx, r.log, r.retry, func() error {
		start := time.Now()
		row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, string(id))
		var err error
		user, err = scanUser(row)
		return db.HandleQueryError(err, ErrUserNotFound, "find user by id", start)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// CheckIn stamps the record with the database clock in a single statement.
// GREATEST keeps the stored value from moving backwards when two check-ins
// race; the row lock serializes them.
func (r *PgRepository) CheckIn(ctx context.Context, id domain.ID) (domain.CheckInResult, error) {
	start := time.Now()
	row := r.q.QueryRow(
		ctx,
		`UPDATE users
		 SET last_check_in_at = GREATEST(last_check_in_at, clock_timestamp()),
		     version = version + 1
		 WHERE id = $1
		 RETURNING `+userColumns,
		string(id),
	)

	user, err := scanUser(row)
	if err := db.HandleQueryError(err, ErrUserNotFound, "check in user", start); err != nil {
		return domain.CheckInResult{}, err
	}
	if user.LastCheckInAt == nil {
		return domain.CheckInResult{}, fmt.Errorf("check in user: no timestamp returned for %s", id)
	}
	return domain.CheckInResult{User: user, Timestamp: *user.LastCheckInAt}, nil
}

func (r *PgRepository) UpdateThreshold(ctx context.Context, id domain.ID, seconds int) (domain.User, error) {
	start := time.Now()
	row := r.q.QueryRow(
		ctx,
		`UPDATE users
		 SET timeout_threshold = $2,
		     version = version + 1
		 WHERE id = $1
		 RETURNING `+userColumns,
		string(id),
		seconds,
	)

	user, err := scanUser(row)
	if err := db.HandleQueryError(err, ErrUserNotFound, "update user threshold", start); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *PgRepository) UpdateProfile(ctx context.Context, id domain.ID, update domain.ProfileUpdate) (domain.User, error) {
	start := time.Now()
	row := r.q.QueryRow(
		ctx,
		`UPDATE users
		 SET display_name = COALESCE($2, display_name),
		     contact1_name = COALESCE($3, contact1_name),
		     contact1_phone = COALESCE($4, contact1_phone),
		     contact2_name = COALESCE($5, contact2_name),
		     contact2_phone = COALESCE($6, contact2_phone),
		     version = version + 1
		 WHERE id = $1
		 RETURNING `+userColumns,
		string(id),
		update.DisplayName,
		update.Contact1Name,
		update.Contact1Phone,
		update.Contact2Name,
		update.Contact2Phone,
	)

	user, err := scanUser(row)
	if err := db.HandleQueryError(err, ErrUserNotFound, "update user profile", start); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user domain.User
		id   string
		last *time.Time
	)
	err := row.Scan(
		&id,
		&user.Username,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Contacts.Contact1Name,
		&user.Contacts.Contact1Phone,
		&user.Contacts.Contact2Name,
		&user.Contacts.Contact2Phone,
		&last,
		&user.TimeoutThreshold,
		&user.Version,
		&user.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	user.ID = domain.ID(id)
	if last != nil {
		t := last.UTC()
		user.LastCheckInAt = &t
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
