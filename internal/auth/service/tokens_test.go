package service_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "github.com/AlibekovAA/safecheck/internal/auth/domain"
	"github.com/AlibekovAA/safecheck/internal/auth/service"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/mocks"
	"github.com/AlibekovAA/safecheck/internal/common/resilience"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

var owner = userdomain.User{ID: "user-123", Username: "elderly1"}

func newIssuer(secret string, ids *mocks.IDGenerator, now time.Time) *service.TokenIssuer {
	return service.NewTokenIssuer(secret, ids, 15*time.Minute, clock.NewMockClock(now))
}

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	now := time.Now()
	ids := &mocks.IDGenerator{NewIDFunc: func() (string, error) { return "jti-123", nil }}

	tok, err := newIssuer(testJWTSecret, ids, now).Issue(owner)
	require.NoError(t, err)
	assert.Equal(t, "jti-123", tok.JTI)
	assert.Equal(t, now.Add(15*time.Minute), tok.ExpiresAt)

	claims, err := newIssuer(testJWTSecret, ids, now).Parse(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "elderly1", claims.Username)
	assert.Equal(t, "jti-123", claims.JTI)
}

func TestTokenIssuer_IDGenerationError(t *testing.T) {
	ids := &mocks.IDGenerator{NewIDFunc: func() (string, error) { return "", errors.New("id generation failed") }}

	_, err := newIssuer(testJWTSecret, ids, time.Now()).Issue(owner)
	assert.Error(t, err)
}

func TestTokenIssuer_ParseRejects(t *testing.T) {
	ids := &mocks.IDGenerator{}
	issuer := newIssuer(testJWTSecret, ids, time.Now())

	foreign, err := newIssuer("different-secret-key-must-be-at-least-32-bytes", ids, time.Now()).Issue(owner)
	require.NoError(t, err)
	expired, err := newIssuer(testJWTSecret, ids, time.Now().Add(-time.Hour)).Issue(owner)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "invalid-token",
		"wrong secret": foreign.Token,
		"expired":      expired.Token,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.ErrorIs(t, err, commonerrors.ErrInvalidToken)
		})
	}
}

func newRefreshIssuer(t *testing.T, repo *mocks.RefreshTokenRepo, now time.Time) *service.RefreshTokenIssuer {
	t.Helper()
	log := logger.NewWriter(io.Discard, "test", "error")
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Threshold:  5,
		Timeout:    5 * time.Second,
		ResetAfter: 30 * time.Second,
		Name:       "refresh_issuer_test",
		Logger:     log,
	})
	return service.NewRefreshTokenIssuer(repo, breaker, &mocks.IDGenerator{}, 7*24*time.Hour, 5, clock.NewMockClock(now), log)
}

func TestRefreshTokenIssuer_StoresOnlyHash(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := &mocks.RefreshTokenRepo{}

	var keep int
	repo.DeleteExcessByUserIDFunc = func(_ context.Context, userID string, k int) error {
		assert.Equal(t, "user-123", userID)
		keep = k
		return nil
	}
	var stored authdomain.RefreshToken
	repo.CreateFunc = func(_ context.Context, token authdomain.RefreshToken) error {
		stored = token
		return nil
	}

	token, err := newRefreshIssuer(t, repo, now).Issue(context.Background(), "user-123")
	require.NoError(t, err)

	assert.Equal(t, 5, keep)
	require.NotEmpty(t, token.RawToken)
	assert.Equal(t, service.HashRefreshToken(token.RawToken), stored.TokenHash)
	assert.Empty(t, stored.RawToken)
	assert.Equal(t, now.Add(7*24*time.Hour), token.ExpiresAt)
	assert.Equal(t, now, stored.CreatedAt)
}

func TestRefreshTokenIssuer_TrimFailureStopsIssue(t *testing.T) {
	repo := &mocks.RefreshTokenRepo{}
	repo.DeleteExcessByUserIDFunc = func(context.Context, string, int) error {
		return errors.New("delete failed")
	}
	created := false
	repo.CreateFunc = func(context.Context, authdomain.RefreshToken) error {
		created = true
		return nil
	}

	_, err := newRefreshIssuer(t, repo, time.Now()).Issue(context.Background(), "user-123")
	assert.Error(t, err)
	assert.False(t, created)
}

func TestGenerateRefreshToken_Unique(t *testing.T) {
	a, err := service.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := service.GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}
