package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeWidgetLoaded      = "widget_loaded"
	EventTypeWidgetOpened      = "widget_opened"
	EventTypeFeedbackSubmitted = "feedback_submitted"
	EventTypeWidgetError       = "widget_error"

	EventMetadataParentURL = "parentUrl"
	EventMetadataTimestamp = "timestamp"

	eventMetadataMaxKeys = 16
)

var (
	ErrInvalidEventWidget   = errors.New("invalid_event_widget")
	ErrInvalidEventType     = errors.New("invalid_event_type")
	ErrInvalidEventMetadata = errors.New("invalid_event_metadata")
)

var knownEventTypes = map[string]struct{}{
	EventTypeWidgetLoaded:      {},
	EventTypeWidgetOpened:      {},
	EventTypeFeedbackSubmitted: {},
	EventTypeWidgetError:       {},
}

// EventMetadata carries free-form telemetry attributes.
type EventMetadata map[string]any

// Event is an append-only telemetry record of a widget lifecycle occurrence.
type Event struct {
	ID        string        `gorm:"primaryKey;size:36"`
	WidgetID  string        `gorm:"not null;size:36;index"`
	EventType string        `gorm:"not null;size:32;index"`
	Metadata  EventMetadata `gorm:"serializer:json;type:text"`
	CreatedAt time.Time     `gorm:"autoCreateTime;index"`
}

// EventInput holds the raw values used to construct an Event.
type EventInput struct {
	WidgetID  string
	EventType string
	Metadata  EventMetadata
}

// NewEvent constructs an Event for a known event type.
func NewEvent(input EventInput) (Event, error) {
	widgetID := strings.TrimSpace(input.WidgetID)
	if widgetID == "" {
		return Event{}, ErrInvalidEventWidget
	}

	eventType := strings.TrimSpace(input.EventType)
	if !IsKnownEventType(eventType) {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidEventType, input.EventType)
	}

	if len(input.Metadata) > eventMetadataMaxKeys {
		return Event{}, fmt.Errorf("%w: too many keys", ErrInvalidEventMetadata)
	}
	metadata := make(EventMetadata, len(input.Metadata))
	for key, value := range input.Metadata {
		metadata[key] = value
	}

	return Event{
		ID:        uuid.NewString(),
		WidgetID:  widgetID,
		EventType: eventType,
		Metadata:  metadata,
	}, nil
}

// IsKnownEventType reports whether the tag is one of the recognized telemetry event types.
func IsKnownEventType(eventType string) bool {
	_, known := knownEventTypes[eventType]
	return known
}
