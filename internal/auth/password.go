package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhall/internal/model"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// HashPassword validates and hashes a plaintext password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", model.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		// bcrypt refuses passwords longer than 72 bytes.
		return "", fmt.Errorf("hash password: %w: %w", model.ErrValidation, err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
