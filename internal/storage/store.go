package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const (
	// MaxRecentFeedback bounds the feedback list returned to dashboards.
	MaxRecentFeedback = 100

	columnID        = "id"
	columnAdminID   = "admin_id"
	columnWidgetID  = "widget_id"
	columnEventType = "event_type"
	columnIsActive  = "is_active"
	columnEmail     = "email"
	columnDate      = "date"

	orderNewestFirst = "created_at desc, id desc"
)

var (
	// ErrRecordNotFound indicates the requested entity does not exist.
	ErrRecordNotFound = errors.New("storage: record not found")
	// ErrAdminExists indicates an admin with the same email is already registered.
	ErrAdminExists = errors.New("storage: admin already exists")
)

// Store exposes entity-scoped queries over widgets, feedback, events and admins.
type Store struct {
	database *gorm.DB
}

// NewStore wraps an opened and migrated database.
func NewStore(database *gorm.DB) *Store {
	return &Store{database: database}
}

// Database returns the underlying connection for jobs that aggregate across tables.
func (store *Store) Database() *gorm.DB {
	return store.database
}

func (store *Store) withContext(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	return store.database.WithContext(ctx)
}

// CreateAdmin inserts a new admin, rejecting duplicate email addresses.
func (store *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	return store.withContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var existingCount int64
		if err := transaction.Model(&model.Admin{}).Where(columnEmail+" = ?", admin.Email).Count(&existingCount).Error; err != nil {
			return err
		}
		if existingCount > 0 {
			return ErrAdminExists
		}
		return transaction.Create(admin).Error
	})
}

// FindAdminByEmail returns the admin registered with the provided email.
func (store *Store) FindAdminByEmail(ctx context.Context, email string) (model.Admin, error) {
	var admin model.Admin
	err := store.withContext(ctx).First(&admin, columnEmail+" = ?", strings.ToLower(strings.TrimSpace(email))).Error
	return admin, translateError(err)
}

// FindAdminByID returns the admin with the provided identifier.
func (store *Store) FindAdminByID(ctx context.Context, adminID string) (model.Admin, error) {
	var admin model.Admin
	err := store.withContext(ctx).First(&admin, columnID+" = ?", adminID).Error
	return admin, translateError(err)
}

// CreateWidget inserts a widget.
func (store *Store) CreateWidget(ctx context.Context, widget *model.Widget) error {
	return store.withContext(ctx).Create(widget).Error
}

// FindWidget returns the widget with the provided identifier.
func (store *Store) FindWidget(ctx context.Context, widgetID string) (model.Widget, error) {
	var widget model.Widget
	err := store.withContext(ctx).First(&widget, columnID+" = ?", widgetID).Error
	return widget, translateError(err)
}

// ListWidgetsByAdmin returns the admin's widgets, newest first.
func (store *Store) ListWidgetsByAdmin(ctx context.Context, adminID string) ([]model.Widget, error) {
	var widgets []model.Widget
	if err := store.withContext(ctx).
		Where(columnAdminID+" = ?", adminID).
		Order(orderNewestFirst).
		Find(&widgets).Error; err != nil {
		return nil, err
	}
	return widgets, nil
}

// SetWidgetActive updates the active flag and returns the stored widget.
func (store *Store) SetWidgetActive(ctx context.Context, widgetID string, isActive bool) (model.Widget, error) {
	result := store.withContext(ctx).Model(&model.Widget{}).Where(columnID+" = ?", widgetID).Update(columnIsActive, isActive)
	if result.Error != nil {
		return model.Widget{}, result.Error
	}
	if result.RowsAffected == 0 {
		return model.Widget{}, ErrRecordNotFound
	}
	return store.FindWidget(ctx, widgetID)
}

// DeleteWidget removes a widget together with its feedback, events and rollups.
func (store *Store) DeleteWidget(ctx context.Context, widgetID string) error {
	return store.withContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Where(columnWidgetID+" = ?", widgetID).Delete(&model.Feedback{}).Error; err != nil {
			return err
		}
		if err := transaction.Where(columnWidgetID+" = ?", widgetID).Delete(&model.Event{}).Error; err != nil {
			return err
		}
		if err := transaction.Where(columnWidgetID+" = ?", widgetID).Delete(&model.EventRollup{}).Error; err != nil {
			return err
		}
		result := transaction.Delete(&model.Widget{ID: widgetID})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

// InsertFeedback stores a feedback record.
func (store *Store) InsertFeedback(ctx context.Context, feedback *model.Feedback) error {
	return store.withContext(ctx).Create(feedback).Error
}

// InsertEvent stores a telemetry event.
func (store *Store) InsertEvent(ctx context.Context, event *model.Event) error {
	return store.withContext(ctx).Create(event).Error
}

// RecentFeedback returns the newest feedback across the provided widgets, capped at MaxRecentFeedback.
func (store *Store) RecentFeedback(ctx context.Context, widgetIDs []string, limit int) ([]model.Feedback, error) {
	if len(widgetIDs) == 0 {
		return []model.Feedback{}, nil
	}
	if limit <= 0 || limit > MaxRecentFeedback {
		limit = MaxRecentFeedback
	}
	var feedback []model.Feedback
	if err := store.withContext(ctx).
		Where(columnWidgetID+" IN ?", widgetIDs).
		Order(orderNewestFirst).
		Limit(limit).
		Find(&feedback).Error; err != nil {
		return nil, err
	}
	return feedback, nil
}

// CountFeedback returns the number of feedback records for a widget.
func (store *Store) CountFeedback(ctx context.Context, widgetID string) (int64, error) {
	var count int64
	err := store.withContext(ctx).Model(&model.Feedback{}).Where(columnWidgetID+" = ?", widgetID).Count(&count).Error
	return count, err
}

// CountEvents returns the number of events of one type recorded for a widget.
func (store *Store) CountEvents(ctx context.Context, widgetID string, eventType string) (int64, error) {
	var count int64
	err := store.withContext(ctx).Model(&model.Event{}).
		Where(columnWidgetID+" = ? AND "+columnEventType+" = ?", widgetID, eventType).
		Count(&count).Error
	return count, err
}

// EventRollups returns the daily rollups recorded for a widget on or after since, oldest first.
func (store *Store) EventRollups(ctx context.Context, widgetID string, since time.Time) ([]model.EventRollup, error) {
	var rollups []model.EventRollup
	if err := store.withContext(ctx).
		Where(columnWidgetID+" = ? AND "+columnDate+" >= ?", widgetID, since.UTC()).
		Order(columnDate + " asc, " + columnEventType + " asc").
		Find(&rollups).Error; err != nil {
		return nil, err
	}
	return rollups, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return fmt.Errorf("storage: query: %w", err)
}
