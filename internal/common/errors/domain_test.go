package commonerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedErrorsMatchSentinel(t *testing.T) {
	cause := errors.New("connection reset")
	derived := ErrDatabaseError.WithCause(cause).WithDetails(map[string]any{"table": "users"})

	assert.ErrorIs(t, derived, ErrDatabaseError)
	assert.ErrorIs(t, derived, cause)
	assert.NotErrorIs(t, derived, ErrInternalError)
	assert.Equal(t, "database operation failed: connection reset", derived.Error())
	assert.Equal(t, map[string]any{"table": "users"}, derived.Details())
	assert.Nil(t, ErrDatabaseError.Details())
}

func TestAsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("check in: %w", ErrUserNotFound)

	de, ok := AsDomainError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "USER_NOT_FOUND", de.Code())
	assert.Equal(t, CategoryNotFound, de.Category())
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus())

	_, ok = AsDomainError(errors.New("plain"))
	assert.False(t, ok)
}
