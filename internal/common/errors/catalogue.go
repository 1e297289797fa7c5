package commonerrors

import "net/http"

var (
	ErrUserNotFound          = NewDomainError("USER_NOT_FOUND", CategoryNotFound, http.StatusNotFound, "user not found")
	ErrUsernameAlreadyExists = NewDomainError("USERNAME_ALREADY_EXISTS", CategoryConflict, http.StatusConflict, "username already exists")
)

// Authentication failures. All of them are 401 so clients can treat them the
// same way: refresh once, then sign in again.
var (
	ErrUnauthenticated           = NewDomainError("UNAUTHENTICATED", CategoryUnauthorized, http.StatusUnauthorized, "authentication required")
	ErrInvalidToken              = NewDomainError("INVALID_TOKEN", CategoryUnauthorized, http.StatusUnauthorized, "token is not valid")
	ErrInvalidTokenSigningMethod = NewDomainError("INVALID_TOKEN_SIGNING_METHOD", CategoryUnauthorized, http.StatusUnauthorized, "invalid token signing method")
	ErrInvalidTokenClaims        = NewDomainError("INVALID_TOKEN_CLAIMS", CategoryUnauthorized, http.StatusUnauthorized, "invalid token claims")
	ErrMissingTokenClaims        = NewDomainError("MISSING_TOKEN_CLAIMS", CategoryUnauthorized, http.StatusUnauthorized, "missing required token claims")
)

var (
	ErrValidationFailed = NewDomainError("VALIDATION_FAILED", CategoryValidation, http.StatusBadRequest, "validation failed")
	ErrInvalidThreshold = NewDomainError("INVALID_THRESHOLD", CategoryValidation, http.StatusBadRequest, "timeout threshold must be a positive number of seconds")
	ErrInvalidJSON      = NewDomainError("INVALID_JSON", CategoryValidation, http.StatusBadRequest, "invalid json")
	ErrRequestTooLarge  = NewDomainError("REQUEST_TOO_LARGE", CategoryValidation, http.StatusRequestEntityTooLarge, "request body too large")
	ErrRateLimited      = NewDomainError("RATE_LIMITED", CategoryValidation, http.StatusTooManyRequests, "rate limit exceeded")
)

var (
	ErrCircuitOpen        = NewDomainError("CIRCUIT_OPEN", CategoryExternal, http.StatusServiceUnavailable, "circuit breaker is open")
	ErrServiceUnavailable = NewDomainError("SERVICE_UNAVAILABLE", CategoryExternal, http.StatusServiceUnavailable, "service temporarily unavailable")
	ErrDatabaseError      = NewDomainError("DATABASE_ERROR", CategoryInternal, http.StatusInternalServerError, "database operation failed")
	ErrInternalError      = NewDomainError("INTERNAL_ERROR", CategoryInternal, http.StatusInternalServerError, "internal server error")
)
