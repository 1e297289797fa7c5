package http

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	usernameTagRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	phoneTagRegex    = regexp.MustCompile(`^\+?[0-9 ()-]+$`)
)

func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernameTagRegex.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phoneTagRegex.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidateStruct runs the struct tags of v and reports failures as
// VALIDATION_FAILED with one detail entry per offending field.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return commonerrors.ErrValidationFailed.WithCause(err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describeFieldError(fe)
	}
	return commonerrors.ErrValidationFailed.WithDetails(details).WithCause(err)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "username":
		return "may contain only letters, digits, underscore and dash"
	case "phone":
		return "must be a phone number"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// PathParam returns the single path segment following prefix, or false when
// the remainder is empty or contains further segments.
func PathParam(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
