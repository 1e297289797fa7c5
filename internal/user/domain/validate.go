package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

var phoneRegex = regexp.MustCompile(`^\+?[0-9 ()-]+$`)

// Validate checks the fields that are set. A blank display name is rejected;
// blank contact fields clear the contact.
func (p ProfileUpdate) Validate() error {
	details := map[string]any{}

	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		switch {
		case name == "":
			details["displayName"] = "is required"
		case utf8.RuneCountInString(name) > constants.DisplayNameMaxLength:
			details["displayName"] = "must be at most 64 characters"
		}
	}

	checkName(details, "contact1Name", p.Contact1Name)
	checkName(details, "contact2Name", p.Contact2Name)
	checkPhone(details, "contact1Phone", p.Contact1Phone)
	checkPhone(details, "contact2Phone", p.Contact2Phone)

	if len(details) > 0 {
		return commonerrors.ErrValidationFailed.WithDetails(details)
	}
	return nil
}

// Normalized trims surrounding whitespace from every set field.
func (p ProfileUpdate) Normalized() ProfileUpdate {
	return ProfileUpdate{
		DisplayName:   trimmed(p.DisplayName),
		Contact1Name:  trimmed(p.Contact1Name),
		Contact1Phone: trimmed(p.Contact1Phone),
		Contact2Name:  trimmed(p.Contact2Name),
		Contact2Phone: trimmed(p.Contact2Phone),
	}
}

func (c Contacts) AsUpdate() ProfileUpdate {
	return ProfileUpdate{
		Contact1Name:  &c.Contact1Name,
		Contact1Phone: &c.Contact1Phone,
		Contact2Name:  &c.Contact2Name,
		Contact2Phone: &c.Contact2Phone,
	}
}

func checkName(details map[string]any, field string, v *string) {
	if v == nil {
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(*v)) > constants.ContactNameMaxLength {
		details[field] = "must be at most 64 characters"
	}
}

func checkPhone(details map[string]any, field string, v *string) {
	if v == nil {
		return
	}
	phone := strings.TrimSpace(*v)
	if phone == "" {
		return
	}
	if len(phone) < constants.PhoneMinLength || len(phone) > constants.PhoneMaxLength || !phoneRegex.MatchString(phone) {
		details[field] = "must be a phone number"
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}
