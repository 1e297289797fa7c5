package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	authdomain "github.com/AlibekovAA/safecheck/internal/auth/domain"
	authrepo "github.com/AlibekovAA/safecheck/internal/auth/repository"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/safecheck/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/jwtverify"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/resilience"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

// AccessToken is a signed bearer token for one owner.
type AccessToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenIssuer signs short-lived HS256 access tokens carrying the owner's id
// and username.
type TokenIssuer struct {
	secret []byte
	ids    commoncrypto.IDGenerator
	clock  clock.Clock
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ids commoncrypto.IDGenerator, ttl time.Duration, clk clock.Clock) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ids: ids, clock: clk, ttl: ttl}
}

func (ti *TokenIssuer) Issue(user userdomain.User) (AccessToken, error) {
	jti, err := ti.ids.NewID()
	if err != nil {
		return AccessToken{}, err
	}

	now := ti.clock.Now()
	expiresAt := now.Add(ti.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": string(user.ID),
		"usr": user.Username,
		"jti": jti,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}).SignedString(ti.secret)
	if err != nil {
		return AccessToken{}, err
	}

	metrics.AccessTokensIssued.Inc()
	return AccessToken{Token: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}

func (ti *TokenIssuer) Parse(token string) (jwtverify.Claims, error) {
	return jwtverify.ParseToken(token, ti.secret)
}

// RefreshTokenIssuer mints opaque refresh tokens. Only the SHA-256 hash is
// stored, and each owner keeps at most maxPerUser live tokens.
type RefreshTokenIssuer struct {
	repo       authrepo.RefreshTokenRepository
	breaker    resilience.Breaker
	ids        commoncrypto.IDGenerator
	clock      clock.Clock
	ttl        time.Duration
	maxPerUser int
	log        *logger.Logger
}

func NewRefreshTokenIssuer(
	repo authrepo.RefreshTokenRepository,
	breaker resilience.Breaker,
	ids commoncrypto.IDGenerator,
	ttl time.Duration,
	maxPerUser int,
	clk clock.Clock,
	log *logger.Logger,
) *RefreshTokenIssuer {
	return &RefreshTokenIssuer{
		repo:       repo,
		breaker:    breaker,
		ids:        ids,
		clock:      clk,
		ttl:        ttl,
		maxPerUser: maxPerUser,
		log:        log,
	}
}

// Issue trims the owner's oldest tokens to make room, then stores a new one.
// The returned token carries RawToken; nothing else ever sees it.
func (ri *RefreshTokenIssuer) Issue(ctx context.Context, userID string) (authdomain.RefreshToken, error) {
	err := ri.breaker.Call(ctx, func(ctx context.Context) error {
		return ri.repo.DeleteExcessByUserID(ctx, userID, ri.maxPerUser)
	})
	if err != nil {
		ri.logFailure(ctx, userID, "trim_refresh_tokens", err)
		return authdomain.RefreshToken{}, err
	}

	raw, err := GenerateRefreshToken()
	if err != nil {
		return authdomain.RefreshToken{}, err
	}
	id, err := ri.ids.NewID()
	if err != nil {
		return authdomain.RefreshToken{}, err
	}

	now := ri.clock.Now()
	token := authdomain.RefreshToken{
		ID:        id,
		TokenHash: HashRefreshToken(raw),
		UserID:    userID,
		ExpiresAt: now.Add(ri.ttl),
		CreatedAt: now,
	}

	err = ri.breaker.Call(ctx, func(ctx context.Context) error {
		return ri.repo.Create(ctx, token)
	})
	if err != nil {
		ri.logFailure(ctx, userID, "create_refresh_token", err)
		return authdomain.RefreshToken{}, err
	}

	metrics.RefreshTokensIssued.Inc()
	token.RawToken = raw
	return token, nil
}

func (ri *RefreshTokenIssuer) logFailure(ctx context.Context, userID, action string, err error) {
	entry := ri.log.WithFields(ctx, logger.Fields{"user_id": userID, "action": action})
	if errors.Is(err, commonerrors.ErrCircuitOpen) {
		entry.Error("refresh token store unavailable: circuit breaker is open")
		return
	}
	entry.Warnf("refresh token store call failed: %v", err)
}

// GenerateRefreshToken returns RefreshTokenSize random bytes, hex encoded.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, constants.RefreshTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
