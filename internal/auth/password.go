// Package auth handles admin credentials, signed API tokens and request base URLs.
package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

var (
	ErrWeakPassword       = errors.New("weak_password")
	ErrPasswordTooLong    = errors.New("password_too_long")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

// ValidatePassword enforces the length policy.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword validates and hashes a password with the default bcrypt cost.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if hashErr != nil {
		return "", fmt.Errorf("auth: hash password: %w", hashErr)
	}
	return string(hashed), nil
}

// CheckPassword reports ErrInvalidCredentials when the password does not match the hash.
func CheckPassword(passwordHash string, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
