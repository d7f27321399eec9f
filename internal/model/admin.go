package model

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const adminEmailMaxLength = 320

var (
	ErrInvalidAdminEmail    = errors.New("invalid_admin_email")
	ErrInvalidAdminPassword = errors.New("invalid_admin_password")
)

// Admin owns widgets and signs in to the dashboard.
type Admin struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"not null;size:320;uniqueIndex"`
	PasswordHash string    `gorm:"not null;size:100"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// NewAdmin constructs an Admin from an email address and an already hashed password.
func NewAdmin(email string, passwordHash string) (Admin, error) {
	normalizedEmail, emailErr := NormalizeAdminEmail(email)
	if emailErr != nil {
		return Admin{}, emailErr
	}
	if strings.TrimSpace(passwordHash) == "" {
		return Admin{}, ErrInvalidAdminPassword
	}
	return Admin{
		ID:           uuid.NewString(),
		Email:        normalizedEmail,
		PasswordHash: passwordHash,
	}, nil
}

// NormalizeAdminEmail lower-cases and validates an admin email address.
func NormalizeAdminEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > adminEmailMaxLength {
		return "", ErrInvalidAdminEmail
	}
	parsed, parseErr := mail.ParseAddress(email)
	if parseErr != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAdminEmail, parseErr)
	}
	if parsed.Address != email {
		return "", ErrInvalidAdminEmail
	}
	return email, nil
}
