// Package auth issues and verifies bearer tokens and hashes secrets.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Credential limits. bcrypt ignores input beyond 72 bytes.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 50
	MinPasswordLen = 4
	MaxPasswordLen = 72
)

var (
	ErrInvalidUsername = fmt.Errorf("username must be %d-%d characters", MinUsernameLen, MaxUsernameLen)
	ErrInvalidPassword = fmt.Errorf("password must be %d-%d bytes", MinPasswordLen, MaxPasswordLen)
	ErrInvalidPIN      = errors.New("PIN must be 4-8 digits")
)

// Hasher wraps bcrypt with a configurable cost.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher, falling back to bcrypt.DefaultCost for
// out-of-range costs.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of secret.
func (h Hasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return string(b), nil
}

// Check reports whether secret matches hash.
func (h Hasher) Check(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// rejectHashes holds one throwaway hash per cost, built on first use.
var rejectHashes sync.Map

// Reject spends the same bcrypt work as Check against a throwaway hash and
// always returns false. Login uses it for unknown usernames so response
// times do not reveal which accounts exist.
func (h Hasher) Reject(secret string) bool {
	hash, ok := rejectHashes.Load(h.Cost)
	if !ok {
		b, err := bcrypt.GenerateFromPassword([]byte("memkeeper-unknown-user"), h.Cost)
		if err != nil {
			return false
		}
		hash, _ = rejectHashes.LoadOrStore(h.Cost, b)
	}
	_ = bcrypt.CompareHashAndPassword(hash.([]byte), []byte(secret))
	return false
}

// NormalizeUsername trims the username and validates its length.
func NormalizeUsername(s string) (string, error) {
	s = strings.TrimSpace(s)
	if n := utf8.RuneCountInString(s); n < MinUsernameLen || n > MaxUsernameLen {
		return "", ErrInvalidUsername
	}
	return s, nil
}

// ValidatePassword checks password length.
func ValidatePassword(s string) error {
	if len(s) < MinPasswordLen || len(s) > MaxPasswordLen {
		return ErrInvalidPassword
	}
	return nil
}

// ValidatePIN checks that pin is 4-8 ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 8 {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}
