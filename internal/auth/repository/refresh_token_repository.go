package repository

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	authdomain "github.com/AlibekovAA/safecheck/internal/auth/domain"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/common/db"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

var ErrRefreshTokenNotFound = commonerrors.NewDomainError(
	"REFRESH_TOKEN_NOT_FOUND",
	commonerrors.CategoryNotFound,
	http.StatusNotFound,
	"refresh token not found",
)

// RefreshTokenRepository stores hashed refresh tokens. Rotation goes through
// WithTx so the old token is locked and consumed exactly once.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token authdomain.RefreshToken) error
	FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error)
	DeleteByTokenHash(ctx context.Context, hash string) error
	DeleteExcessByUserID(ctx context.Context, userID string, keep int) error
	DeleteExpired(ctx context.Context) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, RefreshTokenTx) error) error
}

type RefreshTokenTx interface {
	FindByTokenHashForUpdate(ctx context.Context, hash string) (authdomain.RefreshToken, error)
	DeleteByTokenHash(ctx context.Context, hash string) error
}

const (
	selectRefreshToken = `SELECT id, token_hash, user_id, expires_at, created_at
		FROM refresh_tokens WHERE token_hash = $1`
	insertRefreshToken = `INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	deleteRefreshToken = `DELETE FROM refresh_tokens WHERE token_hash = $1`
	// Keeps the newest $2 tokens of user $1.
	trimRefreshTokens = `DELETE FROM refresh_tokens WHERE id IN (
		SELECT id FROM refresh_tokens WHERE user_id = $1
		ORDER BY created_at DESC OFFSET $2)`
	deleteExpiredRefreshTokens = `DELETE FROM refresh_tokens WHERE expires_at < NOW()`
)

// querier is the part of pgxpool.Pool and pgx.Tx the token queries need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PgRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgRefreshTokenRepository(pool *pgxpool.Pool) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{pool: pool}
}

// WithTx runs fn in one transaction bounded by DBQueryTimeout. It commits
// when fn returns nil and rolls back otherwise.
func (r *PgRefreshTokenRepository) WithTx(ctx context.Context, fn func(context.Context, RefreshTokenTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DBQueryTimeout)
	defer cancel()

	return r.pool.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, txTokens{q: tx})
	})
}

func (r *PgRefreshTokenRepository) Create(ctx context.Context, token authdomain.RefreshToken) error {
	start := time.Now()
	_, err := r.pool.Exec(ctx, insertRefreshToken,
		token.ID, token.TokenHash, token.UserID, token.ExpiresAt, token.CreatedAt)
	return db.HandleExecError(err, "create refresh token", start)
}

func (r *PgRefreshTokenRepository) FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	return findRefreshToken(ctx, r.pool, selectRefreshToken, hash, "find refresh token")
}

func (r *PgRefreshTokenRepository) DeleteByTokenHash(ctx context.Context, hash string) error {
	return deleteRefreshTokenByHash(ctx, r.pool, hash, "delete refresh token")
}

// DeleteExcessByUserID trims the user's tokens so that one more can be added
// without exceeding keep.
func (r *PgRefreshTokenRepository) DeleteExcessByUserID(ctx context.Context, userID string, keep int) error {
	start := time.Now()
	_, err := r.pool.Exec(ctx, trimRefreshTokens, userID, retainBeforeInsert(keep))
	return db.HandleExecError(err, "trim refresh tokens", start)
}

func (r *PgRefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	tag, err := r.pool.Exec(ctx, deleteExpiredRefreshTokens)
	if err != nil {
		return 0, db.HandleExecError(err, "delete expired refresh tokens", start)
	}
	db.MeasureQueryDuration("delete expired refresh tokens", start)
	return tag.RowsAffected(), nil
}

type txTokens struct {
	q querier
}

func (t txTokens) FindByTokenHashForUpdate(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	return findRefreshToken(ctx, t.q, selectRefreshToken+" FOR UPDATE", hash, "lock refresh token")
}

func (t txTokens) DeleteByTokenHash(ctx context.Context, hash string) error {
	return deleteRefreshTokenByHash(ctx, t.q, hash, "consume refresh token")
}

func retainBeforeInsert(keep int) int {
	if keep < 1 {
		return 0
	}
	return keep - 1
}

func findRefreshToken(ctx context.Context, q querier, query, hash, operation string) (authdomain.RefreshToken, error) {
	start := time.Now()
	var token authdomain.RefreshToken
	err := q.QueryRow(ctx, query, hash).
		Scan(&token.ID, &token.TokenHash, &token.UserID, &token.ExpiresAt, &token.CreatedAt)
	if err := db.HandleQueryError(err, ErrRefreshTokenNotFound, operation, start); err != nil {
		return authdomain.RefreshToken{}, err
	}
	return token, nil
}

func deleteRefreshTokenByHash(ctx context.Context, q querier, hash, operation string) error {
	start := time.Now()
	_, err := q.Exec(ctx, deleteRefreshToken, hash)
	return db.HandleExecError(err, operation, start)
}
