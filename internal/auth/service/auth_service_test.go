package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	authdomain "github.com/AlibekovAA/safecheck/internal/auth/domain"
	authrepo "github.com/AlibekovAA/safecheck/internal/auth/repository"
	"github.com/AlibekovAA/safecheck/internal/auth/service"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/mocks"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

const testJWTSecret = "test-secret-key-must-be-at-least-32-bytes-long"

type fixture struct {
	svc       *service.AuthService
	users     *mocks.UserRepo
	tokens    *mocks.RefreshTokenRepo
	hasher    *mocks.Hasher
	idGen     *mocks.IDGenerator
	mockClock *clock.MockClock
}

func setupAuthService(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:     &mocks.UserRepo{},
		tokens:    &mocks.RefreshTokenRepo{},
		hasher:    &mocks.Hasher{},
		idGen:     &mocks.IDGenerator{},
		mockClock: clock.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
	}

	f.svc = service.NewAuthService(
		service.AuthServiceDeps{
			Repo:             f.users,
			RefreshTokenRepo: f.tokens,
			Hasher:           f.hasher,
			IDGenerator:      f.idGen,
			Clock:            f.mockClock,
			Log:              logger.NewWriter(io.Discard, "test", "error"),
		},
		service.AuthServiceConfig{
			JWTSecret:               testJWTSecret,
			AccessTokenTTL:          15 * time.Minute,
			RefreshTokenTTL:         7 * 24 * time.Hour,
			MaxRefreshTokens:        5,
			DefaultThreshold:        86400,
			CircuitBreakerThreshold: 100,
			CircuitBreakerTimeout:   5 * time.Second,
			CircuitBreakerReset:     10 * time.Second,
		},
	)
	return f
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	domainErr, ok := commonerrors.AsDomainError(err)
	if !ok || domainErr.Code() != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	f := setupAuthService(t)

	f.idGen.NewIDFunc = func() (string, error) { return "user-123", nil }

	var created userdomain.User
	f.users.CreateFunc = func(_ context.Context, user userdomain.User) (userdomain.User, error) {
		created = user
		user.Version = 1
		user.CreatedAt = f.mockClock.Now()
		return user, nil
	}

	result, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username:    "testuser",
		Password:    "password123",
		DisplayName: "  Grandma Lin ",
		Contacts: userdomain.Contacts{
			Contact1Name:  "Amy",
			Contact1Phone: "+1 555 0100",
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if created.PasswordHash != "hashed_password123" {
		t.Errorf("expected hashed password, got %s", created.PasswordHash)
	}
	if created.DisplayName != "Grandma Lin" {
		t.Errorf("expected trimmed display name, got %q", created.DisplayName)
	}
	if created.LastCheckInAt != nil {
		t.Error("expected new record to have no check-in")
	}
	if created.TimeoutThreshold != 86400 {
		t.Errorf("expected default threshold, got %d", created.TimeoutThreshold)
	}
	if created.Contacts.Contact1Phone != "+1 555 0100" {
		t.Errorf("expected contact phone to be stored, got %q", created.Contacts.Contact1Phone)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Error("expected both tokens to be set")
	}
	if !result.RefreshExpiresAt.After(f.mockClock.Now()) {
		t.Error("expected refresh token expiration to be in the future")
	}
	if result.User.ID != "user-123" || result.User.Version != 1 {
		t.Errorf("expected created user in result, got %+v", result.User)
	}
}

func TestAuthService_Register_DefaultsDisplayNameToUsername(t *testing.T) {
	f := setupAuthService(t)

	result, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username: "testuser",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.User.DisplayName != "testuser" {
		t.Errorf("expected display name to default to username, got %q", result.User.DisplayName)
	}
}

func TestAuthService_Register_ValidationError(t *testing.T) {
	f := setupAuthService(t)

	testCases := []struct {
		name     string
		input    service.RegisterInput
		wantKeys []string
	}{
		{"short username", service.RegisterInput{Username: "ab", Password: "password123"}, []string{"username"}},
		{"long username", service.RegisterInput{Username: strings.Repeat("a", 33), Password: "password123"}, []string{"username"}},
		{"short password", service.RegisterInput{Username: "testuser", Password: "pass123"}, []string{"password"}},
		{"long password", service.RegisterInput{Username: "testuser", Password: strings.Repeat("a1", 37)}, []string{"password"}},
		{"invalid username chars", service.RegisterInput{Username: "test@user", Password: "password123"}, []string{"username"}},
		{"username starts with dash", service.RegisterInput{Username: "-testuser", Password: "password123"}, []string{"username"}},
		{"username ends with underscore", service.RegisterInput{Username: "testuser_", Password: "password123"}, []string{"username"}},
		{"password without letter", service.RegisterInput{Username: "testuser", Password: "12345678"}, []string{"password"}},
		{"password without digit", service.RegisterInput{Username: "testuser", Password: "abcdefgh"}, []string{"password"}},
		{"both invalid", service.RegisterInput{Username: "a", Password: "b"}, []string{"username", "password"}},
		{
			"bad contact phone",
			service.RegisterInput{
				Username: "testuser",
				Password: "password123",
				Contacts: userdomain.Contacts{Contact2Phone: "not-a-phone"},
			},
			[]string{"contact2Phone"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tc.input)
			assertCode(t, err, "VALIDATION_FAILED")

			domainErr, _ := commonerrors.AsDomainError(err)
			for _, key := range tc.wantKeys {
				if _, ok := domainErr.Details()[key]; !ok {
					t.Errorf("expected detail for %s, got %v", key, domainErr.Details())
				}
			}
		})
	}
}

func TestAuthService_Register_UsernameAlreadyExists(t *testing.T) {
	f := setupAuthService(t)

	f.users.CreateFunc = func(context.Context, userdomain.User) (userdomain.User, error) {
		return userdomain.User{}, commonerrors.ErrUsernameAlreadyExists
	}

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username: "testuser",
		Password: "password123",
	})
	assertCode(t, err, "USERNAME_TAKEN")
}

func TestAuthService_Register_CircuitBreakerOpen(t *testing.T) {
	f := setupAuthService(t)

	f.users.CreateFunc = func(context.Context, userdomain.User) (userdomain.User, error) {
		return userdomain.User{}, commonerrors.ErrCircuitOpen
	}

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username: "testuser",
		Password: "password123",
	})
	assertCode(t, err, "SERVICE_UNAVAILABLE")
}

func TestAuthService_Register_HashError(t *testing.T) {
	f := setupAuthService(t)

	f.hasher.HashFunc = func(string) (string, error) {
		return "", errors.New("hash error")
	}

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username: "testuser",
		Password: "password123",
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAuthService_Register_IDGenerationError(t *testing.T) {
	f := setupAuthService(t)

	f.idGen.NewIDFunc = func() (string, error) {
		return "", errors.New("id generation error")
	}

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username: "testuser",
		Password: "password123",
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	f := setupAuthService(t)

	f.users.FindByUsernameFunc = func(_ context.Context, username string) (userdomain.User, error) {
		return userdomain.User{ID: "user-123", Username: username, PasswordHash: "hashed"}, nil
	}

	result, err := f.svc.Login(context.Background(), service.LoginInput{
		Username: "testuser",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Error("expected both tokens to be set")
	}
	if result.User.Username != "testuser" {
		t.Errorf("expected user in result, got %+v", result.User)
	}
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(f *fixture)
		input service.LoginInput
	}{
		{
			name:  "unknown user",
			setup: func(*fixture) {},
			input: service.LoginInput{Username: "ghost", Password: "password123"},
		},
		{
			name: "wrong password",
			setup: func(f *fixture) {
				f.users.FindByUsernameFunc = func(context.Context, string) (userdomain.User, error) {
					return userdomain.User{ID: "user-123", Username: "testuser", PasswordHash: "hashed"}, nil
				}
				f.hasher.CompareFunc = func(string, string) error { return errors.New("mismatch") }
			},
			input: service.LoginInput{Username: "testuser", Password: "wrong-password1"},
		},
		{
			name:  "empty password",
			setup: func(*fixture) {},
			input: service.LoginInput{Username: "testuser"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupAuthService(t)
			tc.setup(f)

			_, err := f.svc.Login(context.Background(), tc.input)
			assertCode(t, err, "INVALID_CREDENTIALS")
		})
	}
}

func TestAuthService_Login_DatabaseError(t *testing.T) {
	f := setupAuthService(t)

	dbErr := errors.New("connection reset")
	f.users.FindByUsernameFunc = func(context.Context, string) (userdomain.User, error) {
		return userdomain.User{}, dbErr
	}

	_, err := f.svc.Login(context.Background(), service.LoginInput{Username: "testuser", Password: "password123"})
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestAuthService_RefreshAccessToken_Success(t *testing.T) {
	f := setupAuthService(t)

	refreshToken := "test-refresh-token-123"
	hash := service.HashRefreshToken(refreshToken)
	deleted := ""

	f.tokens.Tx = &mocks.RefreshTokenTx{
		FindByTokenHashForUpdateFunc: func(_ context.Context, h string) (authdomain.RefreshToken, error) {
			if h != hash {
				t.Errorf("expected hash %s, got %s", hash, h)
			}
			return authdomain.RefreshToken{
				ID:        "token-id",
				TokenHash: hash,
				UserID:    "user-123",
				ExpiresAt: f.mockClock.Now().Add(24 * time.Hour),
			}, nil
		},
		DeleteByTokenHashFunc: func(_ context.Context, h string) error {
			deleted = h
			return nil
		},
	}
	f.users.FindByIDFunc = func(_ context.Context, id userdomain.ID) (userdomain.User, error) {
		return userdomain.User{ID: id, Username: "testuser"}, nil
	}

	result, err := f.svc.RefreshAccessToken(context.Background(), refreshToken, "127.0.0.1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted != hash {
		t.Error("expected the used refresh token to be deleted")
	}
	if result.RefreshToken == "" || result.RefreshToken == refreshToken {
		t.Error("expected a new refresh token")
	}
}

func TestAuthService_RefreshAccessToken_Expired(t *testing.T) {
	f := setupAuthService(t)

	deleted := false
	f.tokens.Tx = &mocks.RefreshTokenTx{
		FindByTokenHashForUpdateFunc: func(context.Context, string) (authdomain.RefreshToken, error) {
			return authdomain.RefreshToken{
				UserID:    "user-123",
				ExpiresAt: f.mockClock.Now().Add(-time.Minute),
			}, nil
		},
		DeleteByTokenHashFunc: func(context.Context, string) error {
			deleted = true
			return nil
		},
	}
	f.users.FindByIDFunc = func(context.Context, userdomain.ID) (userdomain.User, error) {
		t.Error("user lookup must not happen for an expired token")
		return userdomain.User{}, nil
	}

	_, err := f.svc.RefreshAccessToken(context.Background(), "expired", "")
	assertCode(t, err, "REFRESH_TOKEN_EXPIRED")
	if !deleted {
		t.Error("expected expired token to be deleted")
	}
}

func TestAuthService_RefreshAccessToken_Invalid(t *testing.T) {
	f := setupAuthService(t)

	_, err := f.svc.RefreshAccessToken(context.Background(), "", "")
	assertCode(t, err, "INVALID_REFRESH_TOKEN")

	_, err = f.svc.RefreshAccessToken(context.Background(), "unknown", "10.0.0.1")
	assertCode(t, err, "INVALID_REFRESH_TOKEN")
}

func TestAuthService_RefreshAccessToken_TxError(t *testing.T) {
	f := setupAuthService(t)

	txErr := errors.New("serialization failure")
	f.tokens.WithTxFunc = func(context.Context, func(context.Context, authrepo.RefreshTokenTx) error) error {
		return txErr
	}

	_, err := f.svc.RefreshAccessToken(context.Background(), "token", "")
	if !errors.Is(err, txErr) {
		t.Fatalf("expected tx error, got %v", err)
	}
}

func TestAuthService_RefreshAccessToken_UserGone(t *testing.T) {
	f := setupAuthService(t)

	f.tokens.Tx = &mocks.RefreshTokenTx{
		FindByTokenHashForUpdateFunc: func(context.Context, string) (authdomain.RefreshToken, error) {
			return authdomain.RefreshToken{UserID: "user-123", ExpiresAt: f.mockClock.Now().Add(time.Hour)}, nil
		},
	}

	_, err := f.svc.RefreshAccessToken(context.Background(), "token", "")
	assertCode(t, err, "INVALID_REFRESH_TOKEN")
}

func TestAuthService_RevokeRefreshToken(t *testing.T) {
	f := setupAuthService(t)

	hash := service.HashRefreshToken("token")
	deleted := ""
	f.tokens.FindByTokenHashFunc = func(_ context.Context, h string) (authdomain.RefreshToken, error) {
		return authdomain.RefreshToken{TokenHash: h, UserID: "user-123"}, nil
	}
	f.tokens.DeleteByTokenHashFunc = func(_ context.Context, h string) error {
		deleted = h
		return nil
	}

	if err := f.svc.RevokeRefreshToken(context.Background(), "token"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted != hash {
		t.Errorf("expected hash %s to be deleted, got %s", hash, deleted)
	}
}

func TestAuthService_RevokeRefreshToken_UnknownIsNoop(t *testing.T) {
	f := setupAuthService(t)

	if err := f.svc.RevokeRefreshToken(context.Background(), ""); err != nil {
		t.Fatalf("expected no error for empty token, got %v", err)
	}
	if err := f.svc.RevokeRefreshToken(context.Background(), "unknown"); err != nil {
		t.Fatalf("expected no error for unknown token, got %v", err)
	}
}

func TestAuthService_RevokeRefreshToken_DeleteError(t *testing.T) {
	f := setupAuthService(t)

	f.tokens.FindByTokenHashFunc = func(context.Context, string) (authdomain.RefreshToken, error) {
		return authdomain.RefreshToken{UserID: "user-123"}, nil
	}
	f.tokens.DeleteByTokenHashFunc = func(context.Context, string) error {
		return errors.New("delete failed")
	}

	if err := f.svc.RevokeRefreshToken(context.Background(), "token"); err == nil {
		t.Fatal("expected error")
	}
}
