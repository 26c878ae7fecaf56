package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultOTPCode is the placeholder code accepted while no SMS dispatch exists.
const DefaultOTPCode = "1234"

var (
	ErrOTPCodeRequired = errors.New("verification code is required")
	ErrOTPCodeInvalid  = errors.New("incorrect verification code")
)

// OTPVerifier checks a one-time code entered for a phone number.
type OTPVerifier interface {
	Verify(phone, code string) error
}

// StaticVerifier accepts a single fixed code for every phone number. It is a
// stand-in for a real SMS challenge and gives no security guarantee.
type StaticVerifier struct {
	hash []byte
}

// NewStaticVerifier hashes code (DefaultOTPCode when empty) with bcrypt.
func NewStaticVerifier(code string) (*StaticVerifier, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = DefaultOTPCode
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	return &StaticVerifier{hash: hash}, nil
}

// Verify ignores phone and compares code against the configured one.
func (v *StaticVerifier) Verify(_ string, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrOTPCodeRequired
	}
	if bcrypt.CompareHashAndPassword(v.hash, []byte(code)) != nil {
		return ErrOTPCodeInvalid
	}
	return nil
}
