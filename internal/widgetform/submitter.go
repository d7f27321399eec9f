// Package widgetform implements the feedback form shown inside the widget frame:
// message validation, submission against the backend and the page itself.
package widgetform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/useragent"
)

const (
	// CounterWarningThreshold is the length above which the character counter turns to a warning.
	CounterWarningThreshold = 4500

	messageEmptyText    = "Please enter your feedback"
	messageTooLongText  = "Feedback is too long. Maximum 5000 characters."
	messageInvalidEmail = "Please enter a valid email address"
	messageSubmitFailed = "Failed to submit feedback. Please try again."

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ErrEmptyMessage    = model.ErrEmptyFeedbackMessage
	ErrMessageTooLong  = model.ErrFeedbackMessageTooLong
	ErrInvalidEmail    = model.ErrInvalidFeedbackEmail
	ErrMissingWidgetID = errors.New("missing_widget_id")
	ErrSubmitFailed    = errors.New("submit_failed")
)

// Backend persists feedback and telemetry events.
type Backend interface {
	InsertFeedback(ctx context.Context, feedback *model.Feedback) error
	InsertEvent(ctx context.Context, event *model.Event) error
}

// Submission is one form submission as received from the widget frame.
type Submission struct {
	WidgetID  string `validate:"required,max=36"`
	Message   string
	UserEmail string `validate:"omitempty,email,max=320"`
	PageURL   string
	ParentURL string
	UserAgent string
}

// ValidateMessage trims the message and applies the non-empty and maximum length rules.
func ValidateMessage(message string) (string, error) {
	return model.NormalizeFeedbackMessage(message)
}

// UserMessage returns the text shown inline in the form for a submission error.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyMessage):
		return messageEmptyText
	case errors.Is(err, ErrMessageTooLong):
		return messageTooLongText
	case errors.Is(err, ErrInvalidEmail):
		return messageInvalidEmail
	default:
		return messageSubmitFailed
	}
}

// SubmitterOption customizes a Submitter.
type SubmitterOption func(*Submitter)

// WithLogger sets the logger used for swallowed event failures.
func WithLogger(logger *zap.Logger) SubmitterOption {
	return func(submitter *Submitter) {
		if logger != nil {
			submitter.logger = logger
		}
	}
}

// WithNow replaces the clock used for event timestamps.
func WithNow(now func() time.Time) SubmitterOption {
	return func(submitter *Submitter) {
		if now != nil {
			submitter.now = now
		}
	}
}

// Submitter validates, enriches and stores form submissions.
type Submitter struct {
	backend   Backend
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSubmitter creates a Submitter writing to the provided backend.
func NewSubmitter(backend Backend, options ...SubmitterOption) *Submitter {
	submitter := &Submitter{
		backend:   backend,
		validator: validator.New(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, option := range options {
		option(submitter)
	}
	return submitter
}

// Submit stores the feedback and records a feedback_submitted event. Validation
// failures return before any backend call; a failed event insert is logged only.
func (submitter *Submitter) Submit(ctx context.Context, submission Submission) (model.Feedback, error) {
	message, messageErr := ValidateMessage(submission.Message)
	if messageErr != nil {
		return model.Feedback{}, messageErr
	}
	submission.WidgetID = strings.TrimSpace(submission.WidgetID)
	submission.UserEmail = strings.TrimSpace(submission.UserEmail)
	if validationErr := submitter.validateSubmission(submission); validationErr != nil {
		return model.Feedback{}, validationErr
	}

	classification := useragent.Classify(submission.UserAgent)
	feedback, feedbackErr := model.NewFeedback(model.FeedbackInput{
		WidgetID:  submission.WidgetID,
		Message:   message,
		UserEmail: submission.UserEmail,
		PageURL:   submission.PageURL,
		Browser:   classification.Browser,
		Device:    classification.Device,
	})
	if feedbackErr != nil {
		return model.Feedback{}, feedbackErr
	}

	if insertErr := submitter.backend.InsertFeedback(ctx, &feedback); insertErr != nil {
		submitter.logger.Warn("save_feedback", zap.String("widget_id", feedback.WidgetID), zap.Error(insertErr))
		return model.Feedback{}, fmt.Errorf("%w: %v", ErrSubmitFailed, insertErr)
	}

	parentURL := strings.TrimSpace(submission.ParentURL)
	if parentURL == "" {
		parentURL = feedback.PageURL
	}
	event, eventErr := model.NewEvent(model.EventInput{
		WidgetID:  feedback.WidgetID,
		EventType: model.EventTypeFeedbackSubmitted,
		Metadata: model.EventMetadata{
			model.EventMetadataParentURL: parentURL,
			model.EventMetadataTimestamp: submitter.now().UTC().Format(timestampLayout),
		},
	})
	if eventErr == nil {
		eventErr = submitter.backend.InsertEvent(ctx, &event)
	}
	if eventErr != nil {
		submitter.logger.Warn("record_event_failed", zap.String("widget_id", feedback.WidgetID), zap.Error(eventErr))
	}

	return feedback, nil
}

func (submitter *Submitter) validateSubmission(submission Submission) error {
	validationErr := submitter.validator.Struct(submission)
	if validationErr == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(validationErr, &fieldErrors) || len(fieldErrors) == 0 {
		return validationErr
	}
	if fieldErrors[0].Field() == "UserEmail" {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, fieldErrors[0].Tag())
	}
	return ErrMissingWidgetID
}
