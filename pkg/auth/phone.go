package auth

import (
	"errors"
	"strings"
)

const (
	minPhoneLength = 10
	maxPhoneLength = 15
)

var (
	ErrPhoneRequired = errors.New("phone number is required")
	ErrPhoneTooShort = errors.New("phone number must have at least 10 digits")
	ErrPhoneTooLong  = errors.New("phone number must have at most 15 digits")
	ErrPhoneInvalid  = errors.New("phone number may only contain digits and a leading +")
)

// NormalizePhone trims the input and drops the separators people type into
// phone fields (spaces, dashes, dots and parentheses).
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidatePhone checks a normalized phone number against the length bounds
// the backend accepts.
func ValidatePhone(phone string) error {
	if phone == "" {
		return ErrPhoneRequired
	}
	digits := strings.TrimPrefix(phone, "+")
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ErrPhoneInvalid
		}
	}
	if len(digits) < minPhoneLength {
		return ErrPhoneTooShort
	}
	if len(phone) > maxPhoneLength {
		return ErrPhoneTooLong
	}
	return nil
}
