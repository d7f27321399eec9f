package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/auth"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/dashboard"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
)

const (
	jsonKeyError     = "error"
	jsonKeyEmbedCode = "embed_code"

	errorValueInvalidJSON       = "invalid_json"
	errorValueSaveFailed        = "save_failed"
	errorValueQueryFailed       = "query_failed"
	errorValueNotAuthorized     = "not_authorized"
	errorValueNothingToUpdate   = "nothing_to_update"
	errorValueDeleteFailed      = "delete_failed"
	errorValueStreamUnavailable = "stream_unavailable"
	errorValueInvalidSiteURL    = "invalid_site_url"
	errorValueInvalidTheme      = "invalid_theme"
	errorValueInvalidPosition   = "invalid_position"
	errorValueInvalidLimit      = "invalid_limit"
	errorValueInvalidDays       = "invalid_days"

	queryKeyLimit  = "limit"
	queryKeySearch = "q"
	queryKeyWindow = "window"
	queryKeyDays   = "days"

	defaultActivityDays      = 7
	maxActivityDays          = 90
	feedbackCreatedEventName = "feedback_created"
)

// AdminHandlers serve the authenticated dashboard API.
type AdminHandlers struct {
	store               *storage.Store
	backend             *StoreBackend
	feedbackBroadcaster *FeedbackEventBroadcaster
	logger              *zap.Logger
	publicBaseURL       string
	now                 func() time.Time
}

// NewAdminHandlers wires the admin API over the store. publicBaseURL may be empty,
// in which case embed codes use the request's own origin.
func NewAdminHandlers(store *storage.Store, logger *zap.Logger, publicBaseURL string, feedbackBroadcaster *FeedbackEventBroadcaster) *AdminHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandlers{
		store:               store,
		backend:             NewStoreBackend(store),
		feedbackBroadcaster: feedbackBroadcaster,
		logger:              logger,
		publicBaseURL:       auth.NormalizeBaseURL(publicBaseURL),
		now:                 time.Now,
	}
}

type createWidgetRequest struct {
	SiteURL  string `json:"site_url"`
	Theme    string `json:"theme"`
	Position string `json:"position"`
}

type updateWidgetRequest struct {
	IsActive *bool `json:"is_active"`
}

// Me returns the signed-in admin.
func (handlers *AdminHandlers) Me(context *gin.Context) {
	admin, ok := CurrentAdminFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	context.JSON(http.StatusOK, toAdminResponse(*admin))
}

// ListWidgets returns the admin's widgets, newest first.
func (handlers *AdminHandlers) ListWidgets(context *gin.Context) {
	admin, ok := CurrentAdminFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	widgets, listErr := handlers.store.ListWidgetsByAdmin(context.Request.Context(), admin.ID)
	if listErr != nil {
		handlers.logger.Warn("list_widgets", zap.Error(listErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	baseURL := handlers.baseURL(context)
	responses := make([]widgetResponse, 0, len(widgets))
	for _, widget := range widgets {
		responses = append(responses, toWidgetResponse(widget, baseURL, nil))
	}
	context.JSON(http.StatusOK, listWidgetsResponse{Widgets: responses})
}

// CreateWidget registers a widget for the admin and returns it with its embed code.
func (handlers *AdminHandlers) CreateWidget(context *gin.Context) {
	admin, ok := CurrentAdminFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	var payload createWidgetRequest
	if bindErr := context.ShouldBindWith(&payload, binding.JSON); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}
	widget, createErr := handlers.backend.CreateWidget(context.Request.Context(), admin.ID, model.WidgetInput{
		SiteURL:  payload.SiteURL,
		Theme:    payload.Theme,
		Position: payload.Position,
	})
	if createErr != nil {
		if errorValue, invalid := widgetValidationErrorValue(createErr); invalid {
			context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValue})
			return
		}
		handlers.logger.Error("create_widget", zap.Error(createErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueSaveFailed})
		return
	}
	context.JSON(http.StatusCreated, toWidgetResponse(widget, handlers.baseURL(context), &dashboard.WidgetStats{}))
}

// UpdateWidget pauses or activates a widget.
func (handlers *AdminHandlers) UpdateWidget(context *gin.Context) {
	widget, authorized := handlers.authorizeWidget(context)
	if !authorized {
		return
	}
	var payload updateWidgetRequest
	if bindErr := context.ShouldBindWith(&payload, binding.JSON); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}
	if payload.IsActive == nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueNothingToUpdate})
		return
	}
	updated, updateErr := handlers.store.SetWidgetActive(context.Request.Context(), widget.ID, *payload.IsActive)
	if updateErr != nil {
		handlers.logger.Error("update_widget", zap.String("widget_id", widget.ID), zap.Error(updateErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueSaveFailed})
		return
	}
	context.JSON(http.StatusOK, toWidgetResponse(updated, handlers.baseURL(context), nil))
}

// DeleteWidget removes a widget with its feedback and events.
func (handlers *AdminHandlers) DeleteWidget(context *gin.Context) {
	widget, authorized := handlers.authorizeWidget(context)
	if !authorized {
		return
	}
	if deleteErr := handlers.store.DeleteWidget(context.Request.Context(), widget.ID); deleteErr != nil {
		handlers.logger.Error("delete_widget", zap.String("widget_id", widget.ID), zap.Error(deleteErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueDeleteFailed})
		return
	}
	context.Status(http.StatusNoContent)
}

// WidgetStats returns feedback and view counts for one widget.
func (handlers *AdminHandlers) WidgetStats(context *gin.Context) {
	widget, authorized := handlers.authorizeWidget(context)
	if !authorized {
		return
	}
	stats, statsErr := handlers.backend.WidgetStats(context.Request.Context(), widget.ID)
	if statsErr != nil {
		handlers.logger.Warn("widget_stats", zap.String("widget_id", widget.ID), zap.Error(statsErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	context.JSON(http.StatusOK, stats)
}

// WidgetEmbed returns the script tag for a widget.
func (handlers *AdminHandlers) WidgetEmbed(context *gin.Context) {
	widget, authorized := handlers.authorizeWidget(context)
	if !authorized {
		return
	}
	response := toWidgetResponse(widget, handlers.baseURL(context), nil)
	context.JSON(http.StatusOK, gin.H{jsonKeyEmbedCode: response.EmbedCode})
}

// WidgetActivity returns the daily event rollups for the last N days, today included.
func (handlers *AdminHandlers) WidgetActivity(context *gin.Context) {
	widget, authorized := handlers.authorizeWidget(context)
	if !authorized {
		return
	}
	days, daysErr := parseBoundedInt(context.Query(queryKeyDays), defaultActivityDays, maxActivityDays)
	if daysErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidDays})
		return
	}
	now := handlers.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))
	rollups, rollupErr := handlers.store.EventRollups(context.Request.Context(), widget.ID, since)
	if rollupErr != nil {
		handlers.logger.Warn("widget_activity", zap.String("widget_id", widget.ID), zap.Error(rollupErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	context.JSON(http.StatusOK, toActivityResponse(widget.ID, days, rollups))
}

// ListFeedback returns recent feedback across the admin's widgets, optionally filtered.
func (handlers *AdminHandlers) ListFeedback(context *gin.Context) {
	admin, ok := CurrentAdminFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	limit, limitErr := parseBoundedInt(context.Query(queryKeyLimit), dashboard.MaxFeedbackItems, dashboard.MaxFeedbackItems)
	if limitErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidLimit})
		return
	}
	requestContext := context.Request.Context()
	widgets, listErr := handlers.store.ListWidgetsByAdmin(requestContext, admin.ID)
	if listErr != nil {
		handlers.logger.Warn("list_widgets", zap.Error(listErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	widgetIDs := make([]string, 0, len(widgets))
	for _, widget := range widgets {
		widgetIDs = append(widgetIDs, widget.ID)
	}
	feedback, feedbackErr := handlers.store.RecentFeedback(requestContext, widgetIDs, limit)
	if feedbackErr != nil {
		handlers.logger.Warn("recent_feedback", zap.Error(feedbackErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	filtered := dashboard.Filter(feedback, context.Query(queryKeySearch), dashboard.ParseWindow(context.Query(queryKeyWindow)), handlers.now())
	context.JSON(http.StatusOK, listFeedbackResponse{Feedback: toFeedbackResponses(filtered)})
}

// DashboardSnapshot loads the full dashboard state and its overview.
func (handlers *AdminHandlers) DashboardSnapshot(context *gin.Context) {
	admin, ok := CurrentAdminFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	store := dashboard.NewStore()
	if loadErr := dashboard.Load(context.Request.Context(), handlers.backend, store, admin.ID, handlers.logger); loadErr != nil {
		handlers.logger.Warn("load_dashboard", zap.Error(loadErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	state := store.Snapshot()
	feedback := dashboard.Filter(state.Feedback, context.Query(queryKeySearch), dashboard.ParseWindow(context.Query(queryKeyWindow)), handlers.now())
	context.JSON(http.StatusOK, toDashboardResponse(state, feedback, handlers.baseURL(context)))
}

// StreamFeedbackUpdates pushes feedback_created events for the admin's widgets.
func (handlers *AdminHandlers) StreamFeedbackUpdates(ginContext *gin.Context) {
	admin, ok := CurrentAdminFromContext(ginContext)
	if !ok {
		ginContext.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}
	if handlers.feedbackBroadcaster == nil {
		ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueStreamUnavailable})
		return
	}
	subscription := handlers.feedbackBroadcaster.Subscribe()
	if subscription == nil {
		ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueStreamUnavailable})
		return
	}
	defer subscription.Close()

	ginContext.Header("Content-Type", "text/event-stream")
	ginContext.Header("Cache-Control", "no-cache")
	ginContext.Header("Connection", "keep-alive")

	flusher, flushable := ginContext.Writer.(http.Flusher)
	if !flushable {
		ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueStreamUnavailable})
		return
	}

	ginContext.Writer.WriteHeaderNow()
	flusher.Flush()

	requestContext := ginContext.Request.Context()
	for {
		select {
		case <-requestContext.Done():
			return
		case event, open := <-subscription.Events():
			if !open {
				return
			}
			if event.WidgetID == "" || event.AdminID != admin.ID {
				continue
			}
			serializedPayload, marshalErr := json.Marshal(feedbackStreamPayload{
				WidgetID:      event.WidgetID,
				FeedbackCount: event.FeedbackCount,
				Feedback:      toFeedbackResponse(event.Feedback),
			})
			if marshalErr != nil {
				handlers.logger.Debug("marshal_feedback_event_failed", zap.Error(marshalErr))
				continue
			}
			var buffer bytes.Buffer
			buffer.WriteString("event: ")
			buffer.WriteString(feedbackCreatedEventName)
			buffer.WriteString("\ndata: ")
			buffer.Write(serializedPayload)
			buffer.WriteString("\n\n")
			if _, writeErr := ginContext.Writer.Write(buffer.Bytes()); writeErr != nil {
				handlers.logger.Debug("write_feedback_event_failed", zap.Error(writeErr))
				return
			}
			flusher.Flush()
		}
	}
}

func (handlers *AdminHandlers) authorizeWidget(context *gin.Context) (model.Widget, bool) {
	admin, ok := CurrentAdminFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return model.Widget{}, false
	}
	widgetID := strings.TrimSpace(context.Param("id"))
	if widgetID == "" {
		context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueUnknownWidget})
		return model.Widget{}, false
	}
	widget, findErr := handlers.store.FindWidget(context.Request.Context(), widgetID)
	if findErr != nil {
		if errors.Is(findErr, storage.ErrRecordNotFound) {
			context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueUnknownWidget})
			return model.Widget{}, false
		}
		handlers.logger.Warn("find_widget", zap.String("widget_id", widgetID), zap.Error(findErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return model.Widget{}, false
	}
	if widget.AdminID != admin.ID {
		context.JSON(http.StatusForbidden, gin.H{jsonKeyError: errorValueNotAuthorized})
		return model.Widget{}, false
	}
	return widget, true
}

func (handlers *AdminHandlers) baseURL(context *gin.Context) string {
	baseURL, resolveErr := auth.RequestBaseURL(context.Request, handlers.publicBaseURL)
	if resolveErr != nil {
		handlers.logger.Debug("resolve_base_url", zap.Error(resolveErr))
		return handlers.publicBaseURL
	}
	return baseURL
}

func widgetValidationErrorValue(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrInvalidWidgetSiteURL):
		return errorValueInvalidSiteURL, true
	case errors.Is(err, model.ErrInvalidWidgetTheme):
		return errorValueInvalidTheme, true
	case errors.Is(err, model.ErrInvalidWidgetPosition):
		return errorValueInvalidPosition, true
	default:
		return "", false
	}
}

// parseBoundedInt reads a positive integer, substituting fallback for an empty
// value and clamping to maximum.
func parseBoundedInt(raw string, fallback int, maximum int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, parseErr := strconv.Atoi(trimmed)
	if parseErr != nil {
		return 0, parseErr
	}
	if value < 1 {
		return 0, strconv.ErrRange
	}
	if value > maximum {
		return maximum, nil
	}
	return value, nil
}
