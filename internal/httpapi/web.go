package httpapi

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/auth"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/dashboard"
)

const (
	// DashboardPagePath is where the dashboard UI is served.
	DashboardPagePath = auth.DefaultRedirectPath

	// DarkModeStorageKey is the localStorage key holding the dashboard theme preference.
	DarkModeStorageKey = "darkMode"

	dashboardTemplateName = "dashboard"
	authTemplateName      = "auth"
	dashboardPageTitle    = "FeedbackFlow Dashboard"
	authPageTitle         = "Sign in to FeedbackFlow"

	apiRouteMe             = "/api/me"
	apiRouteWidgets        = "/api/widgets"
	apiRouteDashboard      = "/api/dashboard"
	apiRouteFeedbackEvents = "/api/feedback/events"
	authRouteSignup        = "/auth/signup"
	authRouteLogin         = "/auth/login"
	authRouteLogout        = "/auth/logout"

	clientConfigElementID = "client-config"
	toastContainerID      = "toasts"
)

type dashboardTemplateData struct {
	PageTitle        string
	ClientConfigID   string
	ClientConfigJSON template.JS
	ToastContainerID string
	AdminEmailID     string
	RefreshButtonID  string
	DarkModeToggleID string
	LogoutButtonID   string
	OverviewTotalID  string
	OverviewActiveID string
	OverviewViewsID  string
	OverviewRateID   string
	CreateFormID     string
	WidgetListID     string
	SearchInputID    string
	WindowSelectID   string
	FeedbackListID   string
}

type dashboardClientConfig struct {
	Endpoints          map[string]string `json:"endpoints"`
	ElementIDs         map[string]string `json:"element_ids"`
	Messages           map[string]string `json:"messages"`
	AuthPath           string            `json:"auth_path"`
	DarkModeStorageKey string            `json:"dark_mode_storage_key"`
	ToastDurationMS    int64             `json:"toast_duration_ms"`
	FeedbackEventName  string            `json:"feedback_event_name"`
	MaxFeedbackItems   int               `json:"max_feedback_items"`
}

type authTemplateData struct {
	PageTitle         string
	ClientConfigID    string
	ClientConfigJSON  template.JS
	FormID            string
	HeadingID         string
	ErrorID           string
	SubmitID          string
	ModeToggleID      string
	MinPasswordLength int
}

type authClientConfig struct {
	ElementIDs         map[string]string `json:"element_ids"`
	ErrorMessages      map[string]string `json:"error_messages"`
	SignupPath         string            `json:"signup_path"`
	LoginPath          string            `json:"login_path"`
	DefaultRedirect    string            `json:"default_redirect"`
	DarkModeStorageKey string            `json:"dark_mode_storage_key"`
}

// WebHandlers render the dashboard and auth pages.
type WebHandlers struct {
	logger            *zap.Logger
	dashboardTemplate *template.Template
	authTemplate      *template.Template
}

func NewWebHandlers(logger *zap.Logger) *WebHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebHandlers{
		logger:            logger,
		dashboardTemplate: template.Must(template.New(dashboardTemplateName).Parse(dashboardTemplateHTML)),
		authTemplate:      template.Must(template.New(authTemplateName).Parse(authTemplateHTML)),
	}
}

func (handlers *WebHandlers) RenderDashboard(context *gin.Context) {
	elementIDs := map[string]string{
		"admin_email":     "admin-email",
		"refresh":         "refresh-button",
		"dark_mode":       "dark-mode-toggle",
		"logout":          "logout-button",
		"overview_total":  "overview-total",
		"overview_active": "overview-active",
		"overview_views":  "overview-views",
		"overview_rate":   "overview-rate",
		"create_form":     "create-widget-form",
		"widgets":         "widget-list",
		"search":          "feedback-search",
		"window":          "feedback-window",
		"feedback":        "feedback-list",
		"toasts":          toastContainerID,
	}
	clientConfig := dashboardClientConfig{
		Endpoints: map[string]string{
			"me":              apiRouteMe,
			"widgets":         apiRouteWidgets,
			"dashboard":       apiRouteDashboard,
			"feedback_events": apiRouteFeedbackEvents,
			"logout":          authRouteLogout,
		},
		ElementIDs: elementIDs,
		Messages: map[string]string{
			"refreshed":     "Data refreshed",
			"load_failed":   "Failed to load dashboard data",
			"created":       "Widget created successfully!",
			"create_failed": "Failed to create widget",
			"activated":     "Widget activated",
			"paused":        "Widget paused",
			"update_failed": "Failed to update widget",
			"deleted":       "Widget deleted successfully",
			"delete_failed": "Failed to delete widget",
			"new_feedback":  "New feedback received",
		},
		AuthPath:           auth.AuthPagePath,
		DarkModeStorageKey: DarkModeStorageKey,
		ToastDurationMS:    dashboard.ToastDuration.Milliseconds(),
		FeedbackEventName:  feedbackCreatedEventName,
		MaxFeedbackItems:   dashboard.MaxFeedbackItems,
	}
	configJSON, marshalErr := json.Marshal(clientConfig)
	if marshalErr != nil {
		handlers.logger.Error("marshal_dashboard_config", zap.Error(marshalErr))
		context.String(http.StatusInternalServerError, "dashboard unavailable")
		return
	}

	data := dashboardTemplateData{
		PageTitle:        dashboardPageTitle,
		ClientConfigID:   clientConfigElementID,
		ClientConfigJSON: template.JS(configJSON),
		ToastContainerID: toastContainerID,
		AdminEmailID:     elementIDs["admin_email"],
		RefreshButtonID:  elementIDs["refresh"],
		DarkModeToggleID: elementIDs["dark_mode"],
		LogoutButtonID:   elementIDs["logout"],
		OverviewTotalID:  elementIDs["overview_total"],
		OverviewActiveID: elementIDs["overview_active"],
		OverviewViewsID:  elementIDs["overview_views"],
		OverviewRateID:   elementIDs["overview_rate"],
		CreateFormID:     elementIDs["create_form"],
		WidgetListID:     elementIDs["widgets"],
		SearchInputID:    elementIDs["search"],
		WindowSelectID:   elementIDs["window"],
		FeedbackListID:   elementIDs["feedback"],
	}
	handlers.render(context, handlers.dashboardTemplate, data, "render_dashboard")
}

func (handlers *WebHandlers) RenderAuthPage(context *gin.Context) {
	elementIDs := map[string]string{
		"form":        "auth-form",
		"heading":     "auth-heading",
		"error":       "auth-error",
		"submit":      "auth-submit",
		"mode_toggle": "auth-mode-toggle",
	}
	clientConfig := authClientConfig{
		ElementIDs: elementIDs,
		ErrorMessages: map[string]string{
			errorValueInvalidCredential: "Invalid email or password",
			errorValueInvalidEmail:      "Please enter a valid email address",
			errorValueWeakPassword:      "Password must be at least 8 characters",
			errorValuePasswordTooLong:   "Password is too long",
			errorValueAdminExists:       "An account with this email already exists",
			"request_failed":            "Something went wrong. Please try again.",
		},
		SignupPath:         authRouteSignup,
		LoginPath:          authRouteLogin,
		DefaultRedirect:    DashboardPagePath,
		DarkModeStorageKey: DarkModeStorageKey,
	}
	configJSON, marshalErr := json.Marshal(clientConfig)
	if marshalErr != nil {
		handlers.logger.Error("marshal_auth_config", zap.Error(marshalErr))
		context.String(http.StatusInternalServerError, "sign in unavailable")
		return
	}
	data := authTemplateData{
		PageTitle:         authPageTitle,
		ClientConfigID:    clientConfigElementID,
		ClientConfigJSON:  template.JS(configJSON),
		FormID:            elementIDs["form"],
		HeadingID:         elementIDs["heading"],
		ErrorID:           elementIDs["error"],
		SubmitID:          elementIDs["submit"],
		ModeToggleID:      elementIDs["mode_toggle"],
		MinPasswordLength: auth.MinPasswordLength,
	}
	handlers.render(context, handlers.authTemplate, data, "render_auth_page")
}

func (handlers *WebHandlers) render(context *gin.Context, compiled *template.Template, data any, logEvent string) {
	var buffer bytes.Buffer
	if executeErr := compiled.Execute(&buffer, data); executeErr != nil {
		handlers.logger.Error(logEvent, zap.Error(executeErr))
		context.String(http.StatusInternalServerError, "page unavailable")
		return
	}
	context.Data(http.StatusOK, htmlContentType, buffer.Bytes())
}
