package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidEventRollup = errors.New("invalid_event_rollup")
)

// EventRollup captures the number of events of one type recorded for a widget on one day.
type EventRollup struct {
	ID        string    `gorm:"primaryKey;size:36"`
	WidgetID  string    `gorm:"not null;size:36;uniqueIndex:idx_event_rollups_widget_date_type"`
	Date      time.Time `gorm:"not null;uniqueIndex:idx_event_rollups_widget_date_type"` // UTC date truncated to midnight
	EventType string    `gorm:"not null;size:32;uniqueIndex:idx_event_rollups_widget_date_type"`
	Count     int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// NewEventRollup constructs a rollup for a specific date.
func NewEventRollup(widgetID string, date time.Time, eventType string, count int64) (EventRollup, error) {
	trimmedWidgetID := strings.TrimSpace(widgetID)
	if trimmedWidgetID == "" {
		return EventRollup{}, fmt.Errorf("%w: missing widget_id", ErrInvalidEventRollup)
	}
	if date.IsZero() {
		return EventRollup{}, fmt.Errorf("%w: missing date", ErrInvalidEventRollup)
	}
	trimmedEventType := strings.TrimSpace(eventType)
	if !IsKnownEventType(trimmedEventType) {
		return EventRollup{}, fmt.Errorf("%w: event_type %q", ErrInvalidEventRollup, eventType)
	}
	if count < 0 {
		return EventRollup{}, fmt.Errorf("%w: negative count", ErrInvalidEventRollup)
	}
	utcDate := date.UTC()
	normalizedDate := time.Date(utcDate.Year(), utcDate.Month(), utcDate.Day(), 0, 0, 0, 0, time.UTC)
	return EventRollup{
		ID:        uuid.NewString(),
		WidgetID:  trimmedWidgetID,
		Date:      normalizedDate,
		EventType: trimmedEventType,
		Count:     count,
	}, nil
}
