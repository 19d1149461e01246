package services

import (
	"net/mail"
	"strings"

	"github.com/pdhoward/cypressresortweb/pkg/errors"
)

const maxEmailLength = 254

// NormalizeEmail trims and lowercases email and rejects anything that is not a
// bare addr-spec.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailLength {
		return "", errors.ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", errors.ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", errors.ErrInvalidEmail
	}
	return email, nil
}
