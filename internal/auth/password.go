package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// WHY BCRYPT?
// A password hash has to be slow on purpose. A fast hash (SHA-256) lets an
// attacker with a leaked users table try billions of guesses per second;
// bcrypt's cost factor doubles the work per step, and every hash carries its
// own random salt, so identical passwords never share a hash.
//
// WHAT GETS STORED:
//
//	$2a$12$<22-char salt><31-char hash>
//
// Algorithm, cost and salt travel inside the hash, so Verify needs nothing
// but the stored string. Raising DefaultCost later only affects new hashes.

// DefaultCost is the bcrypt work factor used when none is configured.
//
// Set the cost so hashing takes ~200–300ms on production hardware. Too low is
// easy to crack; too high makes login sluggish under load.
const DefaultCost = 12

// ErrInvalidPassword is returned by Verify when the password does not match.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService provides bcrypt hashing and verification. The cost is a
// field so tests can use bcrypt.MinCost.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService. A cost outside bcrypt's
// accepted range falls back to DefaultCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns a self-contained bcrypt hash ($2a$<cost>$<salt><hash>).
// Passwords over 72 bytes are rejected rather than silently truncated.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash, ErrInvalidPassword when it
// does not. The comparison is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
