package model

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// FeedbackMessageMaxLength is the maximum message length in characters.
	FeedbackMessageMaxLength = 5000

	feedbackEmailMaxLength   = 320
	feedbackPageURLMaxLength = 2048
	feedbackBrowserMaxLength = 32
	feedbackDeviceMaxLength  = 16
)

var (
	ErrInvalidFeedbackWidget  = errors.New("invalid_feedback_widget")
	ErrEmptyFeedbackMessage   = errors.New("empty_message")
	ErrFeedbackMessageTooLong = errors.New("message_too_long")
	ErrInvalidFeedbackEmail   = errors.New("invalid_email")
)

// Feedback is a single message submitted through a widget. It is never mutated after creation.
type Feedback struct {
	ID        string    `gorm:"primaryKey;size:36"`
	WidgetID  string    `gorm:"not null;size:36;index"`
	Message   string    `gorm:"not null;type:text"`
	UserEmail string    `gorm:"size:320"`
	PageURL   string    `gorm:"size:2048"`
	Browser   string    `gorm:"size:32"`
	Device    string    `gorm:"size:16"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// FeedbackInput holds the raw values used to construct a Feedback.
type FeedbackInput struct {
	WidgetID  string
	Message   string
	UserEmail string
	PageURL   string
	Browser   string
	Device    string
}

// NewFeedback constructs a Feedback with validated, normalized fields.
func NewFeedback(input FeedbackInput) (Feedback, error) {
	widgetID := strings.TrimSpace(input.WidgetID)
	if widgetID == "" {
		return Feedback{}, ErrInvalidFeedbackWidget
	}

	message, messageErr := NormalizeFeedbackMessage(input.Message)
	if messageErr != nil {
		return Feedback{}, messageErr
	}

	email := strings.TrimSpace(input.UserEmail)
	if email != "" {
		if len(email) > feedbackEmailMaxLength {
			return Feedback{}, ErrInvalidFeedbackEmail
		}
		if _, parseErr := mail.ParseAddress(email); parseErr != nil {
			return Feedback{}, fmt.Errorf("%w: %v", ErrInvalidFeedbackEmail, parseErr)
		}
	}

	return Feedback{
		ID:        uuid.NewString(),
		WidgetID:  widgetID,
		Message:   message,
		UserEmail: email,
		PageURL:   truncateString(strings.TrimSpace(input.PageURL), feedbackPageURLMaxLength),
		Browser:   truncateString(strings.TrimSpace(input.Browser), feedbackBrowserMaxLength),
		Device:    truncateString(strings.TrimSpace(input.Device), feedbackDeviceMaxLength),
	}, nil
}

// NormalizeFeedbackMessage trims the message and enforces the non-empty and length rules.
func NormalizeFeedbackMessage(raw string) (string, error) {
	message := strings.TrimSpace(raw)
	if message == "" {
		return "", ErrEmptyFeedbackMessage
	}
	if utf8.RuneCountInString(message) > FeedbackMessageMaxLength {
		return "", ErrFeedbackMessageTooLong
	}
	return message, nil
}

func truncateString(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	truncated := value[:limit]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}
