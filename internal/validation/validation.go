package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	languageRegex = regexp.MustCompile(`^[a-z]{2,8}(-[a-z0-9]{1,8})*$`)
	idRegex       = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)
)

// MaxIdentifierLength bounds contest ids, which end up in backend URLs
const MaxIdentifierLength = 64

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(field, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: field, Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: field, Message: "invalid email format"}
	}
	return nil
}

// ValidateLanguage checks a lowercase language tag such as "fr" or "pt-br"
func ValidateLanguage(lang string) error {
	if lang == "" {
		return ValidationError{Field: "language", Message: "language is required"}
	}
	if !languageRegex.MatchString(lang) {
		return ValidationError{Field: "language", Message: fmt.Sprintf("invalid language tag %q", lang)}
	}
	return nil
}

// ValidateIdentifier checks an id that is safe to put in a URL path
func ValidateIdentifier(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	if len(id) > MaxIdentifierLength {
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", MaxIdentifierLength)}
	}
	if !idRegex.MatchString(id) {
		return ValidationError{Field: field, Message: "may only contain letters, digits, '.', '_' and '-'"}
	}
	return nil
}
