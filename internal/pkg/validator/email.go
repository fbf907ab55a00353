package validator

import (
	"fmt"
	"net/mail"
	"strings"

	"mystore/internal/pkg/errors"
)

const MinPasswordLength = 8

// NormalizeEmail trims and lowercases an address and checks that it parses as
// a bare address (no display name).
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", errors.ErrValidationFailed)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email format", errors.ErrValidationFailed)
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 || !strings.Contains(parts[1], ".") {
		return "", fmt.Errorf("%w: invalid email domain", errors.ErrValidationFailed)
	}

	return email, nil
}

func Password(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", errors.ErrValidationFailed, MinPasswordLength)
	}
	return nil
}

func Name(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", errors.ErrValidationFailed)
	}
	if len(name) > 255 {
		return "", fmt.Errorf("%w: name is too long", errors.ErrValidationFailed)
	}
	return name, nil
}
