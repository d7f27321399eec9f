package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/embed"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/metrics"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/ratelimit"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/widgetform"
)

const (
	javaScriptContentType = "application/javascript; charset=utf-8"
	htmlContentType       = "text/html; charset=utf-8"
	scriptCacheControl    = "public, max-age=300"

	jsonKeyStatus = "status"
	jsonKeyID     = "id"

	statusValueOK       = "ok"
	statusValueAccepted = "accepted"

	errorValueRateLimited      = "rate_limited"
	errorValueUnknownWidget    = "unknown_widget"
	errorValueWidgetInactive   = "widget_inactive"
	errorValueInvalidEventType = "invalid_event_type"
	errorValueEmptyMessage     = "empty_message"
	errorValueMessageTooLong   = "message_too_long"
	errorValueInvalidEmail     = "invalid_email"
	errorValueRenderFailed     = "render_failed"

	rateLimitScopeFeedback = "feedback:"
	rateLimitScopeEvents   = "events:"
)

// PublicStore is the storage the public widget endpoints need.
type PublicStore interface {
	widgetform.Backend
	FindWidget(ctx context.Context, widgetID string) (model.Widget, error)
	CountFeedback(ctx context.Context, widgetID string) (int64, error)
}

// PublicHandlers serve the embed loader, the widget page and anonymous submissions.
type PublicHandlers struct {
	store               PublicStore
	submitter           *widgetform.Submitter
	feedbackLimiter     ratelimit.Limiter
	eventLimiter        ratelimit.Limiter
	metrics             *metrics.Manager
	feedbackBroadcaster *FeedbackEventBroadcaster
	logger              *zap.Logger
	loaderScript        []byte
}

// PublicConfig collects PublicHandlers dependencies. Metrics and Broadcaster may be nil.
// Limiter throttles feedback submissions and EventLimiter throttles telemetry
// events; nil limiters get in-memory defaults.
type PublicConfig struct {
	Store        PublicStore
	Limiter      ratelimit.Limiter
	EventLimiter ratelimit.Limiter
	Metrics      *metrics.Manager
	Broadcaster  *FeedbackEventBroadcaster
	Logger       *zap.Logger
}

// NewPublicHandlers renders the loader script once and wires the submitter.
func NewPublicHandlers(config PublicConfig) (*PublicHandlers, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	script, renderErr := embed.RenderScript()
	if renderErr != nil {
		return nil, renderErr
	}
	feedbackLimiter, limiterErr := defaultLimiter(config.Limiter, ratelimit.DefaultMaxRequests)
	if limiterErr != nil {
		return nil, limiterErr
	}
	eventLimiter, limiterErr := defaultLimiter(config.EventLimiter, ratelimit.DefaultEventMaxRequests)
	if limiterErr != nil {
		return nil, limiterErr
	}
	return &PublicHandlers{
		store:               config.Store,
		submitter:           widgetform.NewSubmitter(config.Store, widgetform.WithLogger(logger)),
		feedbackLimiter:     feedbackLimiter,
		eventLimiter:        eventLimiter,
		metrics:             config.Metrics,
		feedbackBroadcaster: config.Broadcaster,
		logger:              logger,
		loaderScript:        script,
	}, nil
}

func defaultLimiter(limiter ratelimit.Limiter, maxRequests int) (ratelimit.Limiter, error) {
	if limiter != nil {
		return limiter, nil
	}
	memoryLimiter, limiterErr := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: maxRequests})
	if limiterErr != nil {
		return nil, limiterErr
	}
	return memoryLimiter, nil
}

type createFeedbackRequest struct {
	WidgetID  string `json:"widget_id"`
	Message   string `json:"message"`
	UserEmail string `json:"user_email"`
	PageURL   string `json:"page_url"`
	ParentURL string `json:"parent_url"`
}

type recordEventRequest struct {
	WidgetID  string              `json:"widget_id"`
	EventType string              `json:"event_type"`
	Metadata  model.EventMetadata `json:"metadata"`
}

// EmbedScript serves the loader script.
func (handlers *PublicHandlers) EmbedScript(context *gin.Context) {
	context.Header("Cache-Control", scriptCacheControl)
	context.Data(http.StatusOK, javaScriptContentType, handlers.loaderScript)
}

// WidgetPage renders the form page loaded inside the iframe.
func (handlers *PublicHandlers) WidgetPage(context *gin.Context) {
	var buffer bytes.Buffer
	if renderErr := widgetform.RenderPage(&buffer, widgetform.ParsePageQuery(context.Request.URL.Query())); renderErr != nil {
		handlers.logger.Error("render_widget_page", zap.Error(renderErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueRenderFailed})
		return
	}
	context.Data(http.StatusOK, htmlContentType, buffer.Bytes())
}

// CreateFeedback stores a submission from the widget form.
func (handlers *PublicHandlers) CreateFeedback(context *gin.Context) {
	if !handlers.allow(context, handlers.feedbackLimiter, rateLimitScopeFeedback) {
		return
	}

	var payload createFeedbackRequest
	if bindErr := context.ShouldBindWith(&payload, binding.JSON); bindErr != nil {
		handlers.reject(context, http.StatusBadRequest, errorValueInvalidJSON)
		return
	}
	if _, messageErr := widgetform.ValidateMessage(payload.Message); messageErr != nil {
		handlers.reject(context, http.StatusBadRequest, submissionErrorValue(messageErr))
		return
	}

	requestContext := context.Request.Context()
	widget, found := handlers.lookupWidget(context, payload.WidgetID)
	if !found {
		return
	}
	if !widget.IsActive {
		handlers.reject(context, http.StatusForbidden, errorValueWidgetInactive)
		return
	}

	feedback, submitErr := handlers.submitter.Submit(requestContext, widgetform.Submission{
		WidgetID:  widget.ID,
		Message:   payload.Message,
		UserEmail: payload.UserEmail,
		PageURL:   payload.PageURL,
		ParentURL: payload.ParentURL,
		UserAgent: context.Request.UserAgent(),
	})
	if submitErr != nil {
		if errors.Is(submitErr, widgetform.ErrSubmitFailed) {
			handlers.reject(context, http.StatusInternalServerError, errorValueSaveFailed)
			return
		}
		handlers.reject(context, http.StatusBadRequest, submissionErrorValue(submitErr))
		return
	}

	if handlers.metrics != nil {
		handlers.metrics.RecordFeedbackSubmitted()
		handlers.metrics.RecordEvent(model.EventTypeFeedbackSubmitted)
	}
	broadcastFeedbackEvent(requestContext, handlers.store, handlers.logger, handlers.feedbackBroadcaster, widget, feedback)
	context.JSON(http.StatusCreated, gin.H{jsonKeyStatus: statusValueOK, jsonKeyID: feedback.ID})
}

// RecordEvent stores a telemetry event sent by the loader or the widget page.
// The body is read as JSON whatever the content type, since beacons arrive as text/plain.
func (handlers *PublicHandlers) RecordEvent(context *gin.Context) {
	if !handlers.allow(context, handlers.eventLimiter, rateLimitScopeEvents) {
		return
	}

	var payload recordEventRequest
	if bindErr := context.ShouldBindWith(&payload, binding.JSON); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}
	eventType := strings.TrimSpace(payload.EventType)
	if !model.IsKnownEventType(eventType) || eventType == model.EventTypeFeedbackSubmitted {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidEventType})
		return
	}

	widget, found := handlers.lookupWidget(context, payload.WidgetID)
	if !found {
		return
	}
	event, eventErr := model.NewEvent(model.EventInput{WidgetID: widget.ID, EventType: eventType, Metadata: payload.Metadata})
	if eventErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidEventType})
		return
	}
	if insertErr := handlers.store.InsertEvent(context.Request.Context(), &event); insertErr != nil {
		handlers.logger.Warn("record_event_failed", zap.String("widget_id", widget.ID), zap.Error(insertErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueSaveFailed})
		return
	}
	if handlers.metrics != nil {
		handlers.metrics.RecordEvent(eventType)
	}
	context.JSON(http.StatusAccepted, gin.H{jsonKeyStatus: statusValueAccepted})
}

func (handlers *PublicHandlers) allow(context *gin.Context, limiter ratelimit.Limiter, scope string) bool {
	allowed, limitErr := limiter.Allow(context.Request.Context(), scope+context.ClientIP())
	if limitErr != nil {
		handlers.logger.Warn("rate_limit_check", zap.Error(limitErr))
		return true
	}
	if !allowed {
		if handlers.metrics != nil {
			handlers.metrics.RecordRateLimited()
		}
		context.JSON(http.StatusTooManyRequests, gin.H{jsonKeyError: errorValueRateLimited})
		return false
	}
	return true
}

func (handlers *PublicHandlers) lookupWidget(context *gin.Context, rawWidgetID string) (model.Widget, bool) {
	widgetID := strings.TrimSpace(rawWidgetID)
	if widgetID == "" {
		handlers.reject(context, http.StatusNotFound, errorValueUnknownWidget)
		return model.Widget{}, false
	}
	widget, findErr := handlers.store.FindWidget(context.Request.Context(), widgetID)
	if findErr != nil {
		if !errors.Is(findErr, storage.ErrRecordNotFound) {
			handlers.logger.Warn("find_widget", zap.String("widget_id", widgetID), zap.Error(findErr))
		}
		handlers.reject(context, http.StatusNotFound, errorValueUnknownWidget)
		return model.Widget{}, false
	}
	return widget, true
}

func (handlers *PublicHandlers) reject(context *gin.Context, status int, errorValue string) {
	if handlers.metrics != nil && context.FullPath() == widgetform.FeedbackPath {
		handlers.metrics.RecordFeedbackRejected(errorValue)
	}
	context.JSON(status, gin.H{jsonKeyError: errorValue})
}

func submissionErrorValue(err error) string {
	switch {
	case errors.Is(err, widgetform.ErrEmptyMessage):
		return errorValueEmptyMessage
	case errors.Is(err, widgetform.ErrMessageTooLong):
		return errorValueMessageTooLong
	case errors.Is(err, widgetform.ErrInvalidEmail):
		return errorValueInvalidEmail
	case errors.Is(err, widgetform.ErrMissingWidgetID):
		return errorValueUnknownWidget
	default:
		return errorValueInvalidJSON
	}
}
