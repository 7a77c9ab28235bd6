// Package password provides password hashing, verification and strength
// policy enforcement using bcrypt.
package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when no explicit cost is given.
const DefaultCost = 12

// Policy violation errors. All are checked before any hashing work is done.
var (
	// ErrTooShort indicates the password is shorter than 8 characters.
	ErrTooShort = errors.New("password must be at least 8 characters long")

	// ErrNoUppercase indicates the password lacks an uppercase letter.
	ErrNoUppercase = errors.New("password must contain at least one uppercase letter")

	// ErrNoLowercase indicates the password lacks a lowercase letter.
	ErrNoLowercase = errors.New("password must contain at least one lowercase letter")

	// ErrNoDigit indicates the password lacks a digit.
	ErrNoDigit = errors.New("password must contain at least one digit")
)

// Hash validates the password against the strength policy and hashes it with
// the default cost.
func Hash(password string) (string, error) {
	return HashWithCost(password, DefaultCost)
}

// HashWithCost validates the password against the strength policy and hashes
// it with an explicit bcrypt cost. Used by tests and planned cost migrations.
func HashWithCost(password string, cost int) (string, error) {
	if err := validateStrength(password); err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hashed), nil
}

// Verify compares a plain password against a bcrypt hash. A non-matching
// password returns (false, nil); an error is returned only when the hash
// itself is malformed.
func Verify(password, hashedPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("bcrypt verify: %w", err)
}

// NeedsRehash reports whether the hash was produced with a cost different
// from targetCost, enabling lazy rehash-on-login. A malformed hash reports
// false; it will fail verification anyway.
func NeedsRehash(hashedPassword string, targetCost int) bool {
	cost, err := bcrypt.Cost([]byte(hashedPassword))
	if err != nil {
		return false
	}
	return cost != targetCost
}

// validateStrength enforces the password policy: at least 8 characters, one
// uppercase letter, one lowercase letter and one digit.
func validateStrength(password string) error {
	if len(password) < 8 {
		return ErrTooShort
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		return ErrNoUppercase
	}
	if !hasLower {
		return ErrNoLowercase
	}
	if !hasDigit {
		return ErrNoDigit
	}
	return nil
}
