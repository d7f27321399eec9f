package task

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const (
	eventRollupJobName   = "event_rollup"
	defaultLookbackDays  = 1
	hoursPerDay          = 24 * time.Hour
	columnEventCreatedAt = "created_at"
)

// RollupRecorder observes how many rollup rows each run wrote.
type RollupRecorder interface {
	RecordRollupsWritten(count int)
}

// EventRollupConfig defines rollup behavior. RetentionDays of zero keeps raw events forever.
type EventRollupConfig struct {
	RetentionDays int
	LookbackDays  int
	Now           func() time.Time
}

// EventRollupResult summarizes one run.
type EventRollupResult struct {
	RollupsWritten int
	EventsPruned   int64
}

// EventRollupJob aggregates raw events into daily per-widget counts and prunes expired events.
type EventRollupJob struct {
	database *gorm.DB
	logger   *zap.Logger
	config   EventRollupConfig
	recorder RollupRecorder
}

// NewEventRollupJob builds an EventRollupJob. The recorder may be nil.
func NewEventRollupJob(database *gorm.DB, logger *zap.Logger, config EventRollupConfig, recorder RollupRecorder) *EventRollupJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = defaultLookbackDays
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &EventRollupJob{database: database, logger: logger, config: config, recorder: recorder}
}

// Name identifies the job in logs.
func (job *EventRollupJob) Name() string {
	return eventRollupJobName
}

// Run aggregates the lookback window, including today so far, then prunes.
func (job *EventRollupJob) Run(ctx context.Context) error {
	_, err := job.Execute(ctx)
	return err
}

// Execute is Run with a result summary.
func (job *EventRollupJob) Execute(ctx context.Context) (EventRollupResult, error) {
	var result EventRollupResult
	today := startOfDay(job.config.Now())
	for offset := job.config.LookbackDays; offset >= 0; offset-- {
		written, err := job.aggregateDay(ctx, today.Add(-time.Duration(offset)*hoursPerDay))
		if err != nil {
			return result, err
		}
		result.RollupsWritten += written
	}
	if job.recorder != nil {
		job.recorder.RecordRollupsWritten(result.RollupsWritten)
	}
	if job.config.RetentionDays > 0 {
		pruned, err := job.pruneExpiredEvents(ctx, today)
		if err != nil {
			return result, err
		}
		result.EventsPruned = pruned
	}
	return result, nil
}

func (job *EventRollupJob) aggregateDay(ctx context.Context, start time.Time) (int, error) {
	end := start.Add(hoursPerDay)

	type aggregateResult struct {
		WidgetID  string
		EventType string
		Total     int64
	}
	var results []aggregateResult
	err := job.database.WithContext(ctx).
		Model(&model.Event{}).
		Select("widget_id, event_type, COUNT(*) as total").
		Where(columnEventCreatedAt+" >= ? AND "+columnEventCreatedAt+" < ?", start, end).
		Group("widget_id, event_type").
		Scan(&results).Error
	if err != nil {
		return 0, fmt.Errorf("task: aggregate events for %s: %w", start.Format(time.DateOnly), err)
	}

	written := 0
	for _, aggregate := range results {
		rollup, rollupErr := model.NewEventRollup(aggregate.WidgetID, start, aggregate.EventType, aggregate.Total)
		if rollupErr != nil {
			job.logger.Warn("event_rollup_invalid", zap.Error(rollupErr), zap.String("widget_id", aggregate.WidgetID))
			continue
		}
		saveErr := job.database.WithContext(ctx).
			Where("widget_id = ? AND date = ? AND event_type = ?", rollup.WidgetID, rollup.Date, rollup.EventType).
			Assign(map[string]any{"count": rollup.Count}).
			FirstOrCreate(&rollup).Error
		if saveErr != nil {
			job.logger.Warn("event_rollup_save_failed", zap.Error(saveErr), zap.String("widget_id", rollup.WidgetID))
			continue
		}
		written++
	}
	return written, nil
}

func (job *EventRollupJob) pruneExpiredEvents(ctx context.Context, today time.Time) (int64, error) {
	cutoff := today.Add(-time.Duration(job.config.RetentionDays) * hoursPerDay)
	result := job.database.WithContext(ctx).Where(columnEventCreatedAt+" < ?", cutoff).Delete(&model.Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("task: prune events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func startOfDay(moment time.Time) time.Time {
	utc := moment.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
