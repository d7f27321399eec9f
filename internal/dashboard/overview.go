package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const recentActivityLimit = 5

// Window names a feedback time filter.
type Window string

const (
	WindowAll    Window = "all"
	WindowToday  Window = "today"
	WindowWeek   Window = "week"
	WindowUnread Window = "unread"
)

// Overview holds the headline numbers shown above the widget list.
type Overview struct {
	TotalFeedback  int              `json:"total_feedback"`
	ActiveWidgets  int              `json:"active_widgets"`
	WidgetViews    int64            `json:"widget_views"`
	ResponseRate   int              `json:"response_rate"`
	RecentActivity []model.Feedback `json:"recent_activity"`
}

// ComputeOverview derives the headline numbers from a snapshot. Views are the
// persisted widget_opened events summed across widgets.
func ComputeOverview(state State) Overview {
	overview := Overview{TotalFeedback: len(state.Feedback)}
	for _, widget := range state.Widgets {
		if widget.IsActive {
			overview.ActiveWidgets++
		}
		overview.WidgetViews += state.WidgetStats[widget.ID].Views
	}
	overview.ResponseRate = ResponseRate(int64(overview.TotalFeedback), overview.WidgetViews)

	recentCount := len(state.Feedback)
	if recentCount > recentActivityLimit {
		recentCount = recentActivityLimit
	}
	overview.RecentActivity = append([]model.Feedback{}, state.Feedback[:recentCount]...)
	return overview
}

// ResponseRate is floor(feedback / views * 100) capped at 100, or 0 without views.
func ResponseRate(feedbackCount int64, viewCount int64) int {
	if viewCount <= 0 || feedbackCount <= 0 {
		return 0
	}
	rate := feedbackCount * 100 / viewCount
	if rate > 100 {
		return 100
	}
	return int(rate)
}

// ParseWindow maps a filter name to a Window, defaulting to WindowAll.
func ParseWindow(raw string) Window {
	switch Window(strings.ToLower(strings.TrimSpace(raw))) {
	case WindowToday:
		return WindowToday
	case WindowWeek:
		return WindowWeek
	case WindowUnread:
		return WindowUnread
	default:
		return WindowAll
	}
}

// Filter narrows an in-memory feedback list by a case-insensitive substring
// query over message, email and page URL and by a time window relative to now.
func Filter(items []model.Feedback, query string, window Window, now time.Time) []model.Feedback {
	needle := strings.ToLower(strings.TrimSpace(query))
	weekStart := now.Add(-7 * 24 * time.Hour)
	nowYear, nowMonth, nowDay := now.Date()

	filtered := make([]model.Feedback, 0, len(items))
	for _, item := range items {
		if needle != "" && !matchesQuery(item, needle) {
			continue
		}
		switch window {
		case WindowToday:
			year, month, day := item.CreatedAt.In(now.Location()).Date()
			if year != nowYear || month != nowMonth || day != nowDay {
				continue
			}
		case WindowWeek:
			if item.CreatedAt.Before(weekStart) {
				continue
			}
		}
		filtered = append(filtered, item)
	}
	return filtered
}

func matchesQuery(item model.Feedback, needle string) bool {
	return strings.Contains(strings.ToLower(item.Message), needle) ||
		strings.Contains(strings.ToLower(item.UserEmail), needle) ||
		strings.Contains(strings.ToLower(item.PageURL), needle)
}

var timeAgoUnits = []struct {
	name    string
	seconds int64
}{
	{name: "year", seconds: 31536000},
	{name: "month", seconds: 2592000},
	{name: "week", seconds: 604800},
	{name: "day", seconds: 86400},
	{name: "hour", seconds: 3600},
	{name: "minute", seconds: 60},
}

// TimeAgo renders a relative label such as "3 hours ago" or "Just now".
func TimeAgo(then time.Time, now time.Time) string {
	elapsedSeconds := int64(now.Sub(then) / time.Second)
	for _, unit := range timeAgoUnits {
		count := elapsedSeconds / unit.seconds
		if count >= 1 {
			if count == 1 {
				return fmt.Sprintf("1 %s ago", unit.name)
			}
			return fmt.Sprintf("%d %ss ago", count, unit.name)
		}
	}
	return "Just now"
}
