// Package mocks holds hand-written doubles for the stores and crypto helpers.
package mocks

import (
	"context"

	authdomain "github.com/AlibekovAA/safecheck/internal/auth/domain"
	authrepo "github.com/AlibekovAA/safecheck/internal/auth/repository"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
	userrepo "github.com/AlibekovAA/safecheck/internal/user/repository"
)

type UserRepo struct {
	CreateFunc          func(ctx context.Context, user userdomain.User) (userdomain.User, error)
	FindByUsernameFunc  func(ctx context.Context, username string) (userdomain.User, error)
	FindByIDFunc        func(ctx context.Context, id userdomain.ID) (userdomain.User, error)
	CheckInFunc         func(ctx context.Context, id userdomain.ID) (userdomain.CheckInResult, error)
	UpdateThresholdFunc func(ctx context.Context, id userdomain.ID, seconds int) (userdomain.User, error)
	UpdateProfileFunc   func(ctx context.Context, id userdomain.ID, update userdomain.ProfileUpdate) (userdomain.User, error)
}

var _ userrepo.Repository = (*UserRepo)(nil)

func (m *UserRepo) Create(ctx context.Context, user userdomain.User) (userdomain.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.Version = 1
	return user, nil
}

func (m *UserRepo) FindByUsername(ctx context.Context, username string) (userdomain.User, error) {
	if m.FindByUsernameFunc != nil {
		return m.FindByUsernameFunc(ctx, username)
	}
	return userdomain.User{}, userrepo.ErrUserNotFound
}

func (m *UserRepo) FindByID(ctx context.Context, id userdomain.ID) (userdomain.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return userdomain.User{}, userrepo.ErrUserNotFound
}

func (m *UserRepo) CheckIn(ctx context.Context, id userdomain.ID) (userdomain.CheckInResult, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, id)
	}
	return userdomain.CheckInResult{}, userrepo.ErrUserNotFound
}

func (m *UserRepo) UpdateThreshold(ctx context.Context, id userdomain.ID, seconds int) (userdomain.User, error) {
	if m.UpdateThresholdFunc != nil {
		return m.UpdateThresholdFunc(ctx, id, seconds)
	}
	return userdomain.User{}, userrepo.ErrUserNotFound
}

func (m *UserRepo) UpdateProfile(ctx context.Context, id userdomain.ID, update userdomain.ProfileUpdate) (userdomain.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, update)
	}
	return userdomain.User{}, userrepo.ErrUserNotFound
}

type RefreshTokenRepo struct {
	CreateFunc               func(ctx context.Context, token authdomain.RefreshToken) error
	FindByTokenHashFunc      func(ctx context.Context, hash string) (authdomain.RefreshToken, error)
	DeleteByTokenHashFunc    func(ctx context.Context, hash string) error
	DeleteExcessByUserIDFunc func(ctx context.Context, userID string, keep int) error
	DeleteExpiredFunc        func(ctx context.Context) (int64, error)
	WithTxFunc               func(ctx context.Context, fn func(context.Context, authrepo.RefreshTokenTx) error) error
	// Tx is handed to WithTx callbacks when WithTxFunc is nil.
	Tx *RefreshTokenTx
}

var _ authrepo.RefreshTokenRepository = (*RefreshTokenRepo)(nil)

func (m *RefreshTokenRepo) Create(ctx context.Context, token authdomain.RefreshToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *RefreshTokenRepo) FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	if m.FindByTokenHashFunc != nil {
		return m.FindByTokenHashFunc(ctx, hash)
	}
	return authdomain.RefreshToken{}, authrepo.ErrRefreshTokenNotFound
}

func (m *RefreshTokenRepo) DeleteByTokenHash(ctx context.Context, hash string) error {
	if m.DeleteByTokenHashFunc != nil {
		return m.DeleteByTokenHashFunc(ctx, hash)
	}
	return nil
}

func (m *RefreshTokenRepo) DeleteExcessByUserID(ctx context.Context, userID string, keep int) error {
	if m.DeleteExcessByUserIDFunc != nil {
		return m.DeleteExcessByUserIDFunc(ctx, userID, keep)
	}
	return nil
}

func (m *RefreshTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

func (m *RefreshTokenRepo) WithTx(ctx context.Context, fn func(context.Context, authrepo.RefreshTokenTx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	tx := m.Tx
	if tx == nil {
		tx = &RefreshTokenTx{}
	}
	return fn(ctx, tx)
}

type RefreshTokenTx struct {
	FindByTokenHashForUpdateFunc func(ctx context.Context, hash string) (authdomain.RefreshToken, error)
	DeleteByTokenHashFunc        func(ctx context.Context, hash string) error
}

func (m *RefreshTokenTx) FindByTokenHashForUpdate(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	if m.FindByTokenHashForUpdateFunc != nil {
		return m.FindByTokenHashForUpdateFunc(ctx, hash)
	}
	return authdomain.RefreshToken{}, authrepo.ErrRefreshTokenNotFound
}

func (m *RefreshTokenTx) DeleteByTokenHash(ctx context.Context, hash string) error {
	if m.DeleteByTokenHashFunc != nil {
		return m.DeleteByTokenHashFunc(ctx, hash)
	}
	return nil
}

type Hasher struct {
	HashFunc    func(password string) (string, error)
	CompareFunc func(hash string, password string) error
}

func (m *Hasher) Hash(password string) (string, error) {
	if m.HashFunc != nil {
		return m.HashFunc(password)
	}
	return "hashed_" + password, nil
}

func (m *Hasher) Compare(hash string, password string) error {
	if m.CompareFunc != nil {
		return m.CompareFunc(hash, password)
	}
	return nil
}

type IDGenerator struct {
	NewIDFunc func() (string, error)
}

func (m *IDGenerator) NewID() (string, error) {
	if m.NewIDFunc != nil {
		return m.NewIDFunc()
	}
	return "test-id-123", nil
}
