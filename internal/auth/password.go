package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor of production hashes.
	DefaultCost = 12

	// MaxPasswordBytes is bcrypt's input limit. Longer input is an error,
	// never a silent truncation.
	MaxPasswordBytes = 72
)

// ErrInvalidPassword is returned by Verify on a mismatch.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService hashes account passwords for the register and login
// endpoints. Hashes embed their salt and cost, so Verify works across
// cost changes.
type PasswordService struct {
	cost int
}

// PasswordOption configures a PasswordService.
type PasswordOption func(*PasswordService)

// WithCost overrides DefaultCost. Values outside bcrypt's range are
// clamped by bcrypt itself.
func WithCost(cost int) PasswordOption {
	return func(p *PasswordService) { p.cost = cost }
}

func NewPasswordService(opts ...PasswordOption) *PasswordService {
	p := &PasswordService{cost: DefaultCost}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Hash returns the bcrypt hash stored in users.password_hash.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns ErrInvalidPassword on a mismatch. OAuth-only accounts
// have an empty hash and never verify.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return ErrInvalidPassword
	}
	switch err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidPassword
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}
