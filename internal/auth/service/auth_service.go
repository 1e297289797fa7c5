package service

import (
	"context"
	"errors"
	"strings"
	"time"

	authrepo "github.com/AlibekovAA/safecheck/internal/auth/repository"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/safecheck/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/resilience"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
	userrepo "github.com/AlibekovAA/safecheck/internal/user/repository"
)

type AuthService struct {
	repo             userrepo.Repository
	refreshTokenRepo authrepo.RefreshTokenRepository
	tokenIssuer      *TokenIssuer
	refreshTokens    *RefreshTokenIssuer
	dbCircuitBreaker resilience.Breaker
	hasher           commoncrypto.PasswordHasher
	idGenerator      commoncrypto.IDGenerator
	clock            clock.Clock
	defaultThreshold int
	log              *logger.Logger
}

type AuthServiceDeps struct {
	Repo             userrepo.Repository
	RefreshTokenRepo authrepo.RefreshTokenRepository
	Hasher           commoncrypto.PasswordHasher
	IDGenerator      commoncrypto.IDGenerator
	Clock            clock.Clock
	Log              *logger.Logger
}

type AuthServiceConfig struct {
	JWTSecret               string
	AccessTokenTTL          time.Duration
	RefreshTokenTTL         time.Duration
	MaxRefreshTokens        int
	DefaultThreshold        int
	CircuitBreakerThreshold int32
	CircuitBreakerTimeout   time.Duration
	CircuitBreakerReset     time.Duration
}

func NewAuthService(deps AuthServiceDeps, cfg AuthServiceConfig) *AuthService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	dbCircuitBreaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Threshold:  cfg.CircuitBreakerThreshold,
		Timeout:    cfg.CircuitBreakerTimeout,
		ResetAfter: cfg.CircuitBreakerReset,
		Name:       "auth_db",
		Logger:     deps.Log,
	})

	refreshTokens := NewRefreshTokenIssuer(
		deps.RefreshTokenRepo,
		dbCircuitBreaker,
		deps.IDGenerator,
		cfg.RefreshTokenTTL,
		cfg.MaxRefreshTokens,
		clk,
		deps.Log,
	)

	return &AuthService{
		repo:             deps.Repo,
		refreshTokenRepo: deps.RefreshTokenRepo,
		tokenIssuer:      NewTokenIssuer(cfg.JWTSecret, deps.IDGenerator, cfg.AccessTokenTTL, clk),
		refreshTokens:    refreshTokens,
		dbCircuitBreaker: dbCircuitBreaker,
		hasher:           deps.Hasher,
		idGenerator:      deps.IDGenerator,
		clock:            clk,
		defaultThreshold: cfg.DefaultThreshold,
		log:              deps.Log,
	}
}

type RegisterInput struct {
	Username    string
	Password    string
	DisplayName string
	Contacts    userdomain.Contacts
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             userdomain.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	s.log.WithFields(ctx, logger.Fields{
		"username": input.Username,
		"action":   "register_attempt",
	}).Info("register attempt")

	if err := validateCredentials(input.Username, input.Password); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_validation_failed",
		}).Warnf("register validation failed: %v", err)
		return AuthResult{}, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = input.Username
	}
	profile := input.Contacts.AsUpdate()
	profile.DisplayName = &displayName
	profile = profile.Normalized()
	if err := profile.Validate(); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_validation_failed",
		}).Warnf("register validation failed: %v", err)
		return AuthResult{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_hash_failed",
		}).Errorf("register failed: password hash error: %v", err)
		return AuthResult{}, internalError("HASH_ERROR", "failed to hash password", err)
	}

	id, err := s.idGenerator.NewID()
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_id_generation_failed",
		}).Errorf("register failed: id generation error: %v", err)
		return AuthResult{}, internalError("ID_GENERATION_ERROR", "failed to generate id", err)
	}

	user := userdomain.User{
		ID:           userdomain.ID(id),
		Username:     input.Username,
		PasswordHash: hash,
		DisplayName:  *profile.DisplayName,
		Contacts:     userdomain.Contacts{
			Contact1Name:  *profile.Contact1Name,
			Contact1Phone: *profile.Contact1Phone,
			Contact2Name:  *profile.Contact2Name,
			Contact2Phone: *profile.Contact2Phone,
		},
		TimeoutThreshold: s.defaultThreshold,
	}

	var created userdomain.User
	err = s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var createErr error
		created, createErr = s.repo.Create(ctx, user)
		return createErr
	})
	if err != nil {
		if errors.Is(err, commonerrors.ErrUsernameAlreadyExists) {
			s.log.WithFields(ctx, logger.Fields{
				"username": input.Username,
				"action":   "register_username_exists",
			}).Warn("register failed: already exists")
			return AuthResult{}, ErrUsernameTaken
		}
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_create_failed",
		}).Errorf("register failed: %v", err)
		return AuthResult{}, unavailableIfOpen(err)
	}

	result, err := s.issueTokens(ctx, created)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"user_id":  string(created.ID),
			"action":   "register_token_issue_failed",
		}).Errorf("register failed: token issue error: %v", err)
		return AuthResult{}, unavailableIfOpen(err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"username": created.Username,
		"user_id":  string(created.ID),
		"action":   "register_success",
	}).Info("register success")

	return result, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	s.log.WithFields(ctx, logger.Fields{
		"username": input.Username,
		"action":   "login_attempt",
	}).Info("login attempt")

	if input.Username == "" || input.Password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	var user userdomain.User
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var findErr error
		user, findErr = s.repo.FindByUsername(ctx, input.Username)
		return findErr
	})
	if err != nil {
		if errors.Is(err, userrepo.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"username": input.Username,
				"action":   "login_user_not_found",
			}).Warn("login failed: not found")
			return AuthResult{}, ErrInvalidCredentials
		}
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "login_fetch_failed",
		}).Errorf("login failed: %v", err)
		return AuthResult{}, unavailableIfOpen(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "login_invalid_password",
		}).Warn("login failed: invalid password")
		return AuthResult{}, ErrInvalidCredentials
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"user_id":  string(user.ID),
			"action":   "login_token_issue_failed",
		}).Errorf("login failed: token issue error: %v", err)
		return AuthResult{}, unavailableIfOpen(err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"username": user.Username,
		"user_id":  string(user.ID),
		"action":   "login_success",
	}).Info("login success")

	return result, nil
}

// RefreshAccessToken consumes refreshToken and issues a new pair. The lookup
// and delete share one transaction, so a token can be redeemed only once.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string, clientIP string) (AuthResult, error) {
	s.log.WithFields(ctx, logger.Fields{
		"action": "refresh_token_attempt",
	}).Info("refresh token attempt")

	if refreshToken == "" {
		return AuthResult{}, ErrInvalidRefreshToken
	}

	hash := HashRefreshToken(refreshToken)
	now := s.clock.Now()

	var userID string
	expired := false
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		return s.refreshTokenRepo.WithTx(ctx, func(ctx context.Context, tx authrepo.RefreshTokenTx) error {
			stored, err := tx.FindByTokenHashForUpdate(ctx, hash)
			if err != nil {
				return err
			}
			if err := tx.DeleteByTokenHash(ctx, hash); err != nil {
				return err
			}
			userID = stored.UserID
			expired = stored.Expired(now)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, authrepo.ErrRefreshTokenNotFound) {
			fields := logger.Fields{
				"action": "refresh_token_not_found",
			}
			if clientIP != "" {
				fields["client_ip"] = clientIP
			}
			s.log.WithFields(ctx, fields).Warn("refresh token failed: not found")
		} else {
			s.log.WithFields(ctx, logger.Fields{
				"action": "refresh_token_lookup_failed",
			}).Errorf("refresh token lookup failed: %v", err)
		}
		return AuthResult{}, refreshTokenError(err)
	}

	if expired {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": userID,
			"action":  "refresh_token_expired",
		}).Warn("refresh token expired")
		metrics.RefreshTokensExpired.Inc()
		return AuthResult{}, ErrRefreshTokenExpired
	}

	var user userdomain.User
	err = s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var findErr error
		user, findErr = s.repo.FindByID(ctx, userdomain.ID(userID))
		return findErr
	})
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": userID,
			"action":  "refresh_token_user_lookup_failed",
		}).Errorf("refresh token failed: user lookup error: %v", err)
		if errors.Is(err, userrepo.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, unavailableIfOpen(err)
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": userID,
			"action":  "refresh_token_issue_failed",
		}).Errorf("refresh token failed to issue new tokens: %v", err)
		return AuthResult{}, unavailableIfOpen(err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": userID,
		"action":  "refresh_token_success",
	}).Info("refresh token success")

	metrics.RefreshTokensUsed.Inc()

	return result, nil
}

// RevokeRefreshToken deletes the token. Unknown tokens are not an error so
// logout stays idempotent.
func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	hash := HashRefreshToken(refreshToken)

	var stored string
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		token, err := s.refreshTokenRepo.FindByTokenHash(ctx, hash)
		if err != nil {
			return err
		}
		stored = token.UserID
		return s.refreshTokenRepo.DeleteByTokenHash(ctx, hash)
	})
	if err != nil {
		if errors.Is(err, authrepo.ErrRefreshTokenNotFound) {
			return nil
		}
		s.log.WithFields(ctx, logger.Fields{
			"action": "revoke_refresh_token_failed",
		}).Errorf("revoke refresh token failed: %v", err)
		return unavailableIfOpen(err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": stored,
		"action":  "refresh_token_revoked",
	}).Info("refresh token revoked")

	metrics.RefreshTokensRevoked.Inc()

	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user userdomain.User) (AuthResult, error) {
	access, err := s.tokenIssuer.Issue(user)
	if err != nil {
		return AuthResult{}, internalError("TOKEN_ERROR", "failed to issue access token", err)
	}

	refresh, err := s.refreshTokens.Issue(ctx, string(user.ID))
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:      access.Token,
		RefreshToken:     refresh.RawToken,
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user,
	}, nil
}
