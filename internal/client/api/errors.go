package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	commonhttp "github.com/AlibekovAA/safecheck/internal/common/http"
)

// known maps server error codes back onto the shared catalogue so callers can
// use errors.Is against the same sentinels the server returns.
var known = map[string]commonerrors.DomainError{}

func init() {
	for _, e := range []commonerrors.DomainError{
		commonerrors.ErrUserNotFound,
		commonerrors.ErrUsernameAlreadyExists,
		commonerrors.ErrUnauthenticated,
		commonerrors.ErrInvalidToken,
		commonerrors.ErrValidationFailed,
		commonerrors.ErrInvalidThreshold,
		commonerrors.ErrInvalidJSON,
		commonerrors.ErrRequestTooLarge,
		commonerrors.ErrRateLimited,
		commonerrors.ErrCircuitOpen,
		commonerrors.ErrServiceUnavailable,
		commonerrors.ErrDatabaseError,
		commonerrors.ErrInternalError,
	} {
		known[e.Code()] = e
	}
}

// decodeError turns a non-2xx response into a DomainError.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var env commonhttp.ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Code == "" {
		return statusError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if base, ok := known[env.Code]; ok {
		if len(env.Details) > 0 {
			return base.WithDetails(env.Details)
		}
		return base
	}
	de := commonerrors.NewDomainError(env.Code, categoryFor(resp.StatusCode), resp.StatusCode, env.Message)
	if len(env.Details) > 0 {
		de = de.WithDetails(env.Details)
	}
	return de
}

func statusError(status int, message string) error {
	switch status {
	case http.StatusNotFound:
		return commonerrors.ErrUserNotFound
	case http.StatusUnauthorized:
		return commonerrors.ErrUnauthenticated
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return commonerrors.ErrServiceUnavailable.WithCause(fmt.Errorf("http %d", status))
	}
	return commonerrors.NewDomainError(commonhttp.CodeUnknown, categoryFor(status), status, message)
}

func categoryFor(status int) commonerrors.ErrorCategory {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return commonerrors.CategoryUnauthorized
	case status == http.StatusNotFound:
		return commonerrors.CategoryNotFound
	case status == http.StatusConflict:
		return commonerrors.CategoryConflict
	case status >= 500:
		return commonerrors.CategoryExternal
	default:
		return commonerrors.CategoryValidation
	}
}
