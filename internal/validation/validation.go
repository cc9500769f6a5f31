package validation

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/super0605/naxum-api/internal/phone"
)

var (
	// ErrInvalidEmail is returned when an email fails RFC 5322 parsing
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrEmailTooLong is returned when an email exceeds the RFC length cap
	ErrEmailTooLong = errors.New("email must be at most 320 characters")

	// ErrPasswordTooShort is returned when a password is under the minimum
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")

	// ErrInvalidPhone is returned when a phone carries too few digits
	ErrInvalidPhone = errors.New("phone number must contain at least 7 digits")

	// ErrNameRequired is returned when a display name is empty
	ErrNameRequired = errors.New("name is required")

	// ErrNameTooLong is returned when a display name is too long
	ErrNameTooLong = errors.New("name must be at most 120 characters")

	// ErrInvalidRole is returned when a role is not LEADER or MEMBER
	ErrInvalidRole = errors.New("role must be LEADER or MEMBER")
)

const (
	maxEmailLength = 320
	minPasswordLen = 8
	minPhoneDigits = 7
	maxNameLength  = 120
)

// ValidateEmail checks an email address against RFC 5322 (simplified)
// and the length cap. Returns the trimmed address on success.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if len(email) > maxEmailLength {
		return "", ErrEmailTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidatePhone checks that a phone string carries enough digits to be
// a dialable number. Returns the trimmed original (formatting is kept
// for display; comparisons use the normalized form).
func ValidatePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(phone.Normalize(raw)) < minPhoneDigits {
		return "", ErrInvalidPhone
	}
	return raw, nil
}

// ValidateName checks a display name for presence and length.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if len(name) > maxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// ValidateRole checks a role string against the allowed set.
func ValidateRole(role string) (string, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role != "LEADER" && role != "MEMBER" {
		return "", ErrInvalidRole
	}
	return role, nil
}
