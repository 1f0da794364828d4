// ABOUTME: Password hashing and verification using bcrypt
// ABOUTME: Hashes a sha256 digest of the password to sidestep bcrypt's 72-byte limit

package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrWrongPassword is returned when a password does not match the stored hash
var ErrWrongPassword = errors.New("wrong password")

// normalize reduces a password of any length to a fixed 32-byte digest, since
// bcrypt silently truncates input beyond 72 bytes.
func normalize(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

// HashPassword returns the bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(normalize(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password against a stored bcrypt hash.
// Returns ErrWrongPassword on mismatch.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), normalize(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrWrongPassword
	}
	if err != nil {
		return fmt.Errorf("comparing password: %w", err)
	}
	return nil
}
