package httpapi

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/dashboard"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
)

// StoreBackend serves the dashboard controller straight from the database.
type StoreBackend struct {
	store *storage.Store
}

// NewStoreBackend wraps a storage.Store.
func NewStoreBackend(store *storage.Store) *StoreBackend {
	return &StoreBackend{store: store}
}

func (backend *StoreBackend) ListWidgets(ctx context.Context, adminID string) ([]model.Widget, error) {
	return backend.store.ListWidgetsByAdmin(ctx, adminID)
}

func (backend *StoreBackend) RecentFeedback(ctx context.Context, widgetIDs []string, limit int) ([]model.Feedback, error) {
	return backend.store.RecentFeedback(ctx, widgetIDs, limit)
}

// WidgetStats counts stored feedback and widget_opened events.
func (backend *StoreBackend) WidgetStats(ctx context.Context, widgetID string) (dashboard.WidgetStats, error) {
	feedbackCount, feedbackErr := backend.store.CountFeedback(ctx, widgetID)
	if feedbackErr != nil {
		return dashboard.WidgetStats{}, fmt.Errorf("count feedback: %w", feedbackErr)
	}
	viewCount, viewErr := backend.store.CountEvents(ctx, widgetID, model.EventTypeWidgetOpened)
	if viewErr != nil {
		return dashboard.WidgetStats{}, fmt.Errorf("count views: %w", viewErr)
	}
	return dashboard.WidgetStats{Feedback: feedbackCount, Views: viewCount}, nil
}

func (backend *StoreBackend) CreateWidget(ctx context.Context, adminID string, input model.WidgetInput) (model.Widget, error) {
	input.AdminID = adminID
	widget, widgetErr := model.NewWidget(input)
	if widgetErr != nil {
		return model.Widget{}, widgetErr
	}
	if createErr := backend.store.CreateWidget(ctx, &widget); createErr != nil {
		return model.Widget{}, createErr
	}
	return widget, nil
}

func (backend *StoreBackend) SetWidgetActive(ctx context.Context, widgetID string, isActive bool) (model.Widget, error) {
	return backend.store.SetWidgetActive(ctx, widgetID, isActive)
}

func (backend *StoreBackend) DeleteWidget(ctx context.Context, widgetID string) error {
	return backend.store.DeleteWidget(ctx, widgetID)
}
