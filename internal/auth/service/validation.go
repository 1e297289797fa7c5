package service

import (
	"regexp"
	"unicode"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateCredentials(username, password string) error {
	details := map[string]any{}

	switch {
	case len(username) < constants.UsernameMinLength || len(username) > constants.UsernameMaxLength:
		details["username"] = "must be between 3 and 32 characters"
	case !isValidUsername(username):
		details["username"] = "may contain only letters, digits, underscore and dash, and must start and end with a letter or digit"
	}

	switch {
	case len(password) < constants.PasswordMinLength || len(password) > constants.PasswordMaxLength:
		details["password"] = "must be between 8 and 72 characters"
	case !isValidPassword(password):
		details["password"] = "must contain at least one letter and one digit"
	}

	if len(details) > 0 {
		return commonerrors.ErrValidationFailed.WithDetails(details)
	}
	return nil
}

func isValidUsername(value string) bool {
	if !usernameRegex.MatchString(value) {
		return false
	}

	if !unicode.IsLetter(rune(value[0])) && !unicode.IsDigit(rune(value[0])) {
		return false
	}

	if !unicode.IsLetter(rune(value[len(value)-1])) && !unicode.IsDigit(rune(value[len(value)-1])) {
		return false
	}

	return true
}

func isValidPassword(value string) bool {
	hasLetter := false
	hasDigit := false

	for _, r := range value {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if hasLetter && hasDigit {
			return true
		}
	}

	return false
}
