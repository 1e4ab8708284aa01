package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPINFormat = errors.New("PIN must be 4 to 6 digits")

const (
	minPINLength = 4
	maxPINLength = 6
)

func ValidatePINFormat(pin string) error {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return ErrInvalidPINFormat
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return ErrInvalidPINFormat
		}
	}
	return nil
}

func HashPIN(pin string) (string, error) {
	if err := ValidatePINFormat(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePIN reports whether pin matches hash. An empty hash never matches.
func ComparePIN(hash, pin string) bool {
	if hash == "" || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
