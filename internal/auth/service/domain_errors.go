package service

import (
	"errors"
	"net/http"

	authrepo "github.com/AlibekovAA/safecheck/internal/auth/repository"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

var (
	ErrInvalidCredentials = commonerrors.NewDomainError(
		"INVALID_CREDENTIALS",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid username or password",
	)

	ErrUsernameTaken = commonerrors.NewDomainError(
		"USERNAME_TAKEN",
		commonerrors.CategoryConflict,
		http.StatusConflict,
		"username already exists",
	)

	ErrInvalidRefreshToken = commonerrors.NewDomainError(
		"INVALID_REFRESH_TOKEN",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid refresh token",
	)

	ErrRefreshTokenExpired = commonerrors.NewDomainError(
		"REFRESH_TOKEN_EXPIRED",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"refresh token expired",
	)
)

// unavailableIfOpen reports an open breaker as SERVICE_UNAVAILABLE.
func unavailableIfOpen(err error) error {
	if errors.Is(err, commonerrors.ErrCircuitOpen) {
		return commonerrors.ErrServiceUnavailable.WithCause(err)
	}
	return err
}

func refreshTokenError(err error) error {
	switch {
	case errors.Is(err, ErrRefreshTokenExpired):
		return ErrRefreshTokenExpired
	case errors.Is(err, authrepo.ErrRefreshTokenNotFound):
		return ErrInvalidRefreshToken
	default:
		return unavailableIfOpen(err)
	}
}

func internalError(code, message string, cause error) commonerrors.DomainError {
	err := commonerrors.NewDomainError(code, commonerrors.CategoryInternal, http.StatusInternalServerError, message)
	if cause != nil {
		return err.WithCause(cause)
	}
	return err
}
