package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/dashboard"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/embed"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const activityDateLayout = time.DateOnly

type adminResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at"`
}

type widgetResponse struct {
	ID        string                 `json:"id"`
	SiteURL   string                 `json:"site_url"`
	Theme     string                 `json:"theme"`
	Position  string                 `json:"position"`
	IsActive  bool                   `json:"is_active"`
	CreatedAt int64                  `json:"created_at"`
	EmbedCode string                 `json:"embed_code"`
	Stats     *dashboard.WidgetStats `json:"stats,omitempty"`
}

type listWidgetsResponse struct {
	Widgets []widgetResponse `json:"widgets"`
}

type feedbackResponse struct {
	ID        string `json:"id"`
	WidgetID  string `json:"widget_id"`
	Message   string `json:"message"`
	UserEmail string `json:"user_email,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
	Browser   string `json:"browser"`
	Device    string `json:"device"`
	CreatedAt int64  `json:"created_at"`
}

type listFeedbackResponse struct {
	Feedback []feedbackResponse `json:"feedback"`
}

type overviewResponse struct {
	TotalFeedback  int                `json:"total_feedback"`
	ActiveWidgets  int                `json:"active_widgets"`
	WidgetViews    int64              `json:"widget_views"`
	ResponseRate   int                `json:"response_rate"`
	RecentActivity []feedbackResponse `json:"recent_activity"`
}

type dashboardResponse struct {
	Widgets  []widgetResponse   `json:"widgets"`
	Feedback []feedbackResponse `json:"feedback"`
	Overview overviewResponse   `json:"overview"`
}

type activityRollupResponse struct {
	Date      string `json:"date"`
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

type activityResponse struct {
	WidgetID string                   `json:"widget_id"`
	Days     int                      `json:"days"`
	Rollups  []activityRollupResponse `json:"rollups"`
}

type feedbackStreamPayload struct {
	WidgetID      string           `json:"widget_id"`
	FeedbackCount int64            `json:"feedback_count"`
	Feedback      feedbackResponse `json:"feedback"`
}

func toAdminResponse(admin model.Admin) adminResponse {
	return adminResponse{ID: admin.ID, Email: admin.Email, CreatedAt: admin.CreatedAt.Unix()}
}

func toWidgetResponse(widget model.Widget, baseURL string, stats *dashboard.WidgetStats) widgetResponse {
	return widgetResponse{
		ID:        widget.ID,
		SiteURL:   widget.SiteURL,
		Theme:     widget.Theme,
		Position:  widget.Position,
		IsActive:  widget.IsActive,
		CreatedAt: widget.CreatedAt.Unix(),
		EmbedCode: embed.EmbedCode(baseURL, widget.ID, widget.Position, widget.Theme),
		Stats:     stats,
	}
}

func toFeedbackResponse(feedback model.Feedback) feedbackResponse {
	return feedbackResponse{
		ID:        feedback.ID,
		WidgetID:  feedback.WidgetID,
		Message:   feedback.Message,
		UserEmail: feedback.UserEmail,
		PageURL:   feedback.PageURL,
		Browser:   feedback.Browser,
		Device:    feedback.Device,
		CreatedAt: feedback.CreatedAt.Unix(),
	}
}

func toFeedbackResponses(items []model.Feedback) []feedbackResponse {
	responses := make([]feedbackResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toFeedbackResponse(item))
	}
	return responses
}

func toDashboardResponse(state dashboard.State, feedback []model.Feedback, baseURL string) dashboardResponse {
	widgets := make([]widgetResponse, 0, len(state.Widgets))
	for _, widget := range state.Widgets {
		stats := state.WidgetStats[widget.ID]
		widgets = append(widgets, toWidgetResponse(widget, baseURL, &stats))
	}
	overview := dashboard.ComputeOverview(state)
	return dashboardResponse{
		Widgets:  widgets,
		Feedback: toFeedbackResponses(feedback),
		Overview: overviewResponse{
			TotalFeedback:  overview.TotalFeedback,
			ActiveWidgets:  overview.ActiveWidgets,
			WidgetViews:    overview.WidgetViews,
			ResponseRate:   overview.ResponseRate,
			RecentActivity: toFeedbackResponses(overview.RecentActivity),
		},
	}
}

func toActivityResponse(widgetID string, days int, rollups []model.EventRollup) activityResponse {
	entries := make([]activityRollupResponse, 0, len(rollups))
	for _, rollup := range rollups {
		entries = append(entries, activityRollupResponse{
			Date:      rollup.Date.UTC().Format(activityDateLayout),
			EventType: rollup.EventType,
			Count:     rollup.Count,
		})
	}
	return activityResponse{WidgetID: widgetID, Days: days, Rollups: entries}
}
