package dashboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

// Backend is the data service the dashboard reads from and mutates.
type Backend interface {
	ListWidgets(ctx context.Context, adminID string) ([]model.Widget, error)
	RecentFeedback(ctx context.Context, widgetIDs []string, limit int) ([]model.Feedback, error)
	WidgetStats(ctx context.Context, widgetID string) (WidgetStats, error)
	CreateWidget(ctx context.Context, adminID string, input model.WidgetInput) (model.Widget, error)
	SetWidgetActive(ctx context.Context, widgetID string, isActive bool) (model.Widget, error)
	DeleteWidget(ctx context.Context, widgetID string) error
}

// Load fetches the admin's widgets, then the most recent feedback across them,
// then every widget's stats concurrently. A failed stats load degrades that
// widget's stats to zero.
func Load(ctx context.Context, backend Backend, store *Store, adminID string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	widgetsGeneration := store.Begin()
	widgets, widgetsErr := backend.ListWidgets(ctx, adminID)
	if widgetsErr != nil {
		return fmt.Errorf("dashboard: load widgets: %w", widgetsErr)
	}
	store.Apply(ReplaceWidgets(widgetsGeneration, widgets))

	widgetIDs := make([]string, 0, len(widgets))
	for _, widget := range widgets {
		widgetIDs = append(widgetIDs, widget.ID)
	}

	feedbackGeneration := store.Begin()
	feedback, feedbackErr := backend.RecentFeedback(ctx, widgetIDs, MaxFeedbackItems)
	if feedbackErr != nil {
		return fmt.Errorf("dashboard: load feedback: %w", feedbackErr)
	}
	store.Apply(ReplaceFeedback(feedbackGeneration, feedback))

	group, groupContext := errgroup.WithContext(ctx)
	for _, widgetID := range widgetIDs {
		widgetID := widgetID
		generation := store.Begin()
		group.Go(func() error {
			stats, statsErr := backend.WidgetStats(groupContext, widgetID)
			if statsErr != nil {
				logger.Warn("load_widget_stats", zap.String("widget_id", widgetID), zap.Error(statsErr))
				stats = WidgetStats{}
			}
			store.Apply(SetWidgetStats(generation, widgetID, stats))
			return nil
		})
	}
	return group.Wait()
}
