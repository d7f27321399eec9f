package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/embed"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

// ToastDuration is how long a notification stays visible in the dashboard.
const ToastDuration = 3000 * time.Millisecond

// RefreshedNotification is the text shown after a successful reload.
const RefreshedNotification = "Data refreshed"

const (
	notificationLoadFailed      = "Failed to load dashboard data"
	notificationWidgetCreated   = "Widget created successfully!"
	notificationCreateFailed    = "Failed to create widget"
	notificationWidgetActivated = "Widget activated"
	notificationWidgetPaused    = "Widget paused"
	notificationUpdateFailed    = "Failed to update widget"
	notificationWidgetDeleted   = "Widget deleted successfully"
	notificationDeleteFailed    = "Failed to delete widget"
)

// ErrUnknownWidget is returned for actions on a widget missing from the loaded state.
var ErrUnknownWidget = errors.New("unknown_widget")

// NotificationKind classifies a transient notification.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
	NotificationInfo    NotificationKind = "info"
)

// Notification is a transient message shown after an action.
type Notification struct {
	Kind NotificationKind
	Text string
}

// Notifier displays notifications.
type Notifier interface {
	Notify(notification Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls the function.
func (function NotifierFunc) Notify(notification Notification) {
	function(notification)
}

// Controller runs dashboard actions against a backend and merges their results into a Store.
type Controller struct {
	backend  Backend
	store    *Store
	notifier Notifier
	logger   *zap.Logger
	adminID  string
	baseURL  string
	now      func() time.Time
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Backend  Backend
	Store    *Store
	Notifier Notifier
	Logger   *zap.Logger
	AdminID  string
	BaseURL  string
	Now      func() time.Time
}

// NewController creates a Controller. A nil Store gets a fresh one.
func NewController(config ControllerConfig) *Controller {
	controller := &Controller{
		backend:  config.Backend,
		store:    config.Store,
		notifier: config.Notifier,
		logger:   config.Logger,
		adminID:  config.AdminID,
		baseURL:  config.BaseURL,
		now:      config.Now,
	}
	if controller.store == nil {
		controller.store = NewStore()
	}
	if controller.notifier == nil {
		controller.notifier = NotifierFunc(func(Notification) {})
	}
	if controller.logger == nil {
		controller.logger = zap.NewNop()
	}
	if controller.now == nil {
		controller.now = time.Now
	}
	return controller
}

// Store returns the state store the controller writes to.
func (controller *Controller) Store() *Store {
	return controller.store
}

// Refresh reloads widgets, feedback and stats.
func (controller *Controller) Refresh(ctx context.Context) error {
	if err := Load(ctx, controller.backend, controller.store, controller.adminID, controller.logger); err != nil {
		controller.logger.Error("load_dashboard", zap.Error(err))
		controller.notify(NotificationError, notificationLoadFailed)
		return err
	}
	controller.notify(NotificationSuccess, RefreshedNotification)
	return nil
}

// Toggle flips a widget between active and paused with exactly one backend
// update. The local state changes only after the backend confirms.
func (controller *Controller) Toggle(ctx context.Context, widgetID string) (model.Widget, error) {
	widget, found := controller.store.Snapshot().Widget(widgetID)
	if !found {
		controller.notify(NotificationError, notificationUpdateFailed)
		return model.Widget{}, ErrUnknownWidget
	}
	return controller.setActive(ctx, widget, !widget.IsActive)
}

// SetActive pauses or activates a widget.
func (controller *Controller) SetActive(ctx context.Context, widgetID string, isActive bool) (model.Widget, error) {
	widget, found := controller.store.Snapshot().Widget(widgetID)
	if !found {
		controller.notify(NotificationError, notificationUpdateFailed)
		return model.Widget{}, ErrUnknownWidget
	}
	return controller.setActive(ctx, widget, isActive)
}

func (controller *Controller) setActive(ctx context.Context, widget model.Widget, isActive bool) (model.Widget, error) {
	generation := controller.store.Begin()
	updated, updateErr := controller.backend.SetWidgetActive(ctx, widget.ID, isActive)
	if updateErr != nil {
		controller.logger.Warn("update_widget", zap.String("widget_id", widget.ID), zap.Error(updateErr))
		controller.notify(NotificationError, notificationUpdateFailed)
		return model.Widget{}, fmt.Errorf("dashboard: update widget: %w", updateErr)
	}
	if updated.ID == "" {
		updated = widget
		updated.IsActive = isActive
	}
	controller.store.Apply(UpsertWidget(generation, updated))
	if updated.IsActive {
		controller.notify(NotificationSuccess, notificationWidgetActivated)
	} else {
		controller.notify(NotificationSuccess, notificationWidgetPaused)
	}
	return updated, nil
}

// Create registers a new widget and adds it to the local list once the backend accepts it.
func (controller *Controller) Create(ctx context.Context, input model.WidgetInput) (model.Widget, error) {
	generation := controller.store.Begin()
	widget, createErr := controller.backend.CreateWidget(ctx, controller.adminID, input)
	if createErr != nil {
		controller.logger.Warn("create_widget", zap.Error(createErr))
		controller.notify(NotificationError, notificationCreateFailed)
		return model.Widget{}, fmt.Errorf("dashboard: create widget: %w", createErr)
	}
	controller.store.Apply(UpsertWidget(generation, widget))
	controller.store.Apply(SetWidgetStats(controller.store.Begin(), widget.ID, WidgetStats{}))
	controller.notify(NotificationSuccess, notificationWidgetCreated)
	return widget, nil
}

// Delete removes a widget and drops it from the local list once the backend confirms.
func (controller *Controller) Delete(ctx context.Context, widgetID string) error {
	generation := controller.store.Begin()
	if deleteErr := controller.backend.DeleteWidget(ctx, widgetID); deleteErr != nil {
		controller.logger.Warn("delete_widget", zap.String("widget_id", widgetID), zap.Error(deleteErr))
		controller.notify(NotificationError, notificationDeleteFailed)
		return fmt.Errorf("dashboard: delete widget: %w", deleteErr)
	}
	controller.store.Apply(RemoveWidget(generation, widgetID))
	controller.notify(NotificationSuccess, notificationWidgetDeleted)
	return nil
}

// EmbedCode returns the script tag for a loaded widget.
func (controller *Controller) EmbedCode(widgetID string) (string, error) {
	widget, found := controller.store.Snapshot().Widget(widgetID)
	if !found {
		return "", ErrUnknownWidget
	}
	return embed.EmbedCode(controller.baseURL, widget.ID, widget.Position, widget.Theme), nil
}

// Search filters the loaded feedback by a substring query.
func (controller *Controller) Search(query string) []model.Feedback {
	return Filter(controller.store.Snapshot().Feedback, query, WindowAll, controller.now())
}

// FilterFeedback filters the loaded feedback by query and time window.
func (controller *Controller) FilterFeedback(query string, window Window) []model.Feedback {
	return Filter(controller.store.Snapshot().Feedback, query, window, controller.now())
}

// Overview computes the headline numbers for the loaded state.
func (controller *Controller) Overview() Overview {
	return ComputeOverview(controller.store.Snapshot())
}

func (controller *Controller) notify(kind NotificationKind, text string) {
	controller.notifier.Notify(Notification{Kind: kind, Text: text})
}
