package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/ratelimit"
)

func TestCreateFeedbackStoresSubmissionAndTelemetry(testingT *testing.T) {
	harness := buildAPIHarness(testingT)
	admin, _ := harness.createAdmin(testingT, "owner@example.com")
	widget := harness.createWidget(testingT, admin.ID, "https://shop.example.com")

	recorder := harness.submitFeedback(testingT, widget.ID, "  Checkout button is broken  ")
	require.Equal(testingT, http.StatusCreated, recorder.Code, recorder.Body.String())

	var response struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}
	decodeJSON(testingT, recorder, &response)
	require.Equal(testingT, "ok", response.Status)
	require.NotEmpty(testingT, response.ID)

	var stored model.Feedback
	require.NoError(testingT, harness.database.First(&stored, "id = ?", response.ID).Error)
	require.Equal(testingT, "Checkout button is broken", stored.Message)
	require.Equal(testingT, "Chrome", stored.Browser)
	require.Equal(testingT, "Desktop", stored.Device)
	require.Equal(testingT, "https://shop.example.com/checkout", stored.PageURL)

	submitted, countErr := harness.store.CountEvents(context.Background(), widget.ID, model.EventTypeFeedbackSubmitted)
	require.NoError(testingT, countErr)
	require.Equal(testingT, int64(1), submitted)

	scrape := httptest.NewRecorder()
	harness.metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(testingT, scrape.Body.String(), "feedbackflow_server_feedback_submitted_total 1")
}

func TestCreateFeedbackRejections(testingT *testing.T) {
	harness := buildAPIHarness(testingT)
	admin, _ := harness.createAdmin(testingT, "owner@example.com")
	activeWidget := harness.createWidget(testingT, admin.ID, "https://active.example.com")
	pausedWidget := harness.createWidget(testingT, admin.ID, "https://paused.example.com")
	_, pauseErr := harness.store.SetWidgetActive(context.Background(), pausedWidget.ID, false)
	require.NoError(testingT, pauseErr)

	testCases := []struct {
		name           string
		payload        map[string]string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "empty message",
			payload:        map[string]string{"widget_id": activeWidget.ID, "message": "   "},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "empty_message",
		},
		{
			name:           "message too long",
			payload:        map[string]string{"widget_id": activeWidget.ID, "message": strings.Repeat("a", 5001)},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "message_too_long",
		},
		{
			name:           "invalid email",
			payload:        map[string]string{"widget_id": activeWidget.ID, "message": "hello", "user_email": "not-an-email"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid_email",
		},
		{
			name:           "unknown widget",
			payload:        map[string]string{"widget_id": "00000000-0000-0000-0000-000000000000", "message": "hello"},
			expectedStatus: http.StatusNotFound,
			expectedError:  "unknown_widget",
		},
		{
			name:           "missing widget",
			payload:        map[string]string{"message": "hello"},
			expectedStatus: http.StatusNotFound,
			expectedError:  "unknown_widget",
		},
		{
			name:           "paused widget",
			payload:        map[string]string{"widget_id": pausedWidget.ID, "message": "hello"},
			expectedStatus: http.StatusForbidden,
			expectedError:  "widget_inactive",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			recorder := performJSONRequest(testingT, harness.router, http.MethodPost, "/api/feedback", testCase.payload, nil)
			require.Equal(testingT, testCase.expectedStatus, recorder.Code)
			var response map[string]string
			decodeJSON(testingT, recorder, &response)
			require.Equal(testingT, testCase.expectedError, response["error"])
		})
	}

	malformed := performRawRequest(harness.router, http.MethodPost, "/api/feedback", "application/json", "{")
	require.Equal(testingT, http.StatusBadRequest, malformed.Code)
	require.Contains(testingT, malformed.Body.String(), "invalid_json")

	var storedCount int64
	require.NoError(testingT, harness.database.Model(&model.Feedback{}).Count(&storedCount).Error)
	require.Zero(testingT, storedCount)
}

func TestCreateFeedbackAcceptsMaximumLength(testingT *testing.T) {
	harness := buildAPIHarness(testingT)
	admin, _ := harness.createAdmin(testingT, "owner@example.com")
	widget := harness.createWidget(testingT, admin.ID, "https://shop.example.com")

	recorder := harness.submitFeedback(testingT, widget.ID, strings.Repeat("a", 5000))
	require.Equal(testingT, http.StatusCreated, recorder.Code, recorder.Body.String())
}

func TestCreateFeedbackIsRateLimitedPerClient(testingT *testing.T) {
	limiter, limiterErr := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: 2})
	require.NoError(testingT, limiterErr)
	harness := buildAPIHarness(testingT, withLimiter(limiter))
	admin, _ := harness.createAdmin(testingT, "owner@example.com")
	widget := harness.createWidget(testingT, admin.ID, "https://shop.example.com")

	require.Equal(testingT, http.StatusCreated, harness.submitFeedback(testingT, widget.ID, "first").Code)
	require.Equal(testingT, http.StatusCreated, harness.submitFeedback(testingT, widget.ID, "second").Code)

	limited := harness.submitFeedback(testingT, widget.ID, "third")
	require.Equal(testingT, http.StatusTooManyRequests, limited.Code)
	require.Contains(testingT, limited.Body.String(), "rate_limited")
}

func TestTelemetryEventsDoNotConsumeFeedbackBudget(testingT *testing.T) {
	testCases := []struct {
		name           string
		sharedLimiter  bool
		eventsAccepted int
	}{
		{name: "separate limiters", sharedLimiter: false, eventsAccepted: 3},
		{name: "one limiter scoped per endpoint", sharedLimiter: true, eventsAccepted: 2},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			feedbackLimiter, limiterErr := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: 2})
			require.NoError(testingT, limiterErr)
			var eventLimiter ratelimit.Limiter = feedbackLimiter
			if !testCase.sharedLimiter {
				separate, separateErr := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: 3})
				require.NoError(testingT, separateErr)
				eventLimiter = separate
			}
			harness := buildAPIHarness(testingT, withLimiter(feedbackLimiter), withEventLimiter(eventLimiter))
			admin, _ := harness.createAdmin(testingT, "owner@example.com")
			widget := harness.createWidget(testingT, admin.ID, "https://shop.example.com")

			body := `{"widget_id":"` + widget.ID + `","event_type":"widget_opened"}`
			for attempt := 0; attempt < testCase.eventsAccepted; attempt++ {
				recorder := performRawRequest(harness.router, http.MethodPost, "/api/events", "text/plain;charset=UTF-8", body)
				require.Equal(testingT, http.StatusAccepted, recorder.Code, "event %d", attempt)
			}
			exhausted := performRawRequest(harness.router, http.MethodPost, "/api/events", "text/plain;charset=UTF-8", body)
			require.Equal(testingT, http.StatusTooManyRequests, exhausted.Code)

			recorder := harness.submitFeedback(testingT, widget.ID, "Checkout button is broken")
			require.Equal(testingT, http.StatusCreated, recorder.Code, recorder.Body.String())
		})
	}
}

func TestCreateFeedbackBroadcastsToSubscribers(testingT *testing.T) {
	harness := buildAPIHarness(testingT)
	admin, _ := harness.createAdmin(testingT, "owner@example.com")
	widget := harness.createWidget(testingT, admin.ID, "https://shop.example.com")

	subscription := harness.events.Subscribe()
	require.NotNil(testingT, subscription)
	defer subscription.Close()

	require.Equal(testingT, http.StatusCreated, harness.submitFeedback(testingT, widget.ID, "Love it").Code)

	select {
	case event := <-subscription.Events():
		require.Equal(testingT, widget.ID, event.WidgetID)
		require.Equal(testingT, admin.ID, event.AdminID)
		require.Equal(testingT, "Love it", event.Feedback.Message)
		require.Equal(testingT, int64(1), event.FeedbackCount)
	case <-time.After(time.Second):
		testingT.Fatal("expected feedback event")
	}
}

func TestRecordEventAcceptsBeaconPayload(testingT *testing.T) {
	harness := buildAPIHarness(testingT)
	admin, _ := harness.createAdmin(testingT, "owner@example.com")
	widget := harness.createWidget(testingT, admin.ID, "https://shop.example.com")

	body := `{"widget_id":"` + widget.ID + `","event_type":"widget_opened","metadata":{"parentUrl":"https://shop.example.com/","timestamp":"2025-05-10T12:00:00.000Z"}}`
	recorder := performRawRequest(harness.router, http.MethodPost, "/api/events", "text/plain;charset=UTF-8", body)
	require.Equal(testingT, http.StatusAccepted, recorder.Code, recorder.Body.String())
	require.JSONEq(testingT, `{"status":"accepted"}`, recorder.Body.String())

	opened, countErr := harness.store.CountEvents(context.Background(), widget.ID, model.EventTypeWidgetOpened)
	require.NoError(testingT, countErr)
	require.Equal(testingT, int64(1), opened)
}

func TestRecordEventRejections(testingT *testing.T) {
	harness := buildAPIHarness(testingT)
	admin, _ := harness.createAdmin(testingT, "owner@example.com")
	widget := harness.createWidget(testingT, admin.ID, "https://shop.example.com")

	testCases := []struct {
		name           string
		payload        map[string]string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "unknown type",
			payload:        map[string]string{"widget_id": widget.ID, "event_type": "page_scrolled"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid_event_type",
		},
		{
			name:           "server recorded type",
			payload:        map[string]string{"widget_id": widget.ID, "event_type": model.EventTypeFeedbackSubmitted},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid_event_type",
		},
		{
			name:           "unknown widget",
			payload:        map[string]string{"widget_id": "missing", "event_type": model.EventTypeWidgetLoaded},
			expectedStatus: http.StatusNotFound,
			expectedError:  "unknown_widget",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			recorder := performJSONRequest(testingT, harness.router, http.MethodPost, "/api/events", testCase.payload, nil)
			require.Equal(testingT, testCase.expectedStatus, recorder.Code)
			require.Contains(testingT, recorder.Body.String(), testCase.expectedError)
		})
	}
}

func TestEmbedScriptAndWidgetPageAreServed(testingT *testing.T) {
	harness := buildAPIHarness(testingT)

	script := performJSONRequest(testingT, harness.router, http.MethodGet, "/embed.js", nil, nil)
	require.Equal(testingT, http.StatusOK, script.Code)
	require.Equal(testingT, "application/javascript; charset=utf-8", script.Header().Get("Content-Type"))
	require.NotEmpty(testingT, script.Body.String())

	page := performJSONRequest(testingT, harness.router, http.MethodGet, "/widget.html?widgetId=abc&theme=dark&parentUrl=https%3A%2F%2Fshop.example.com%2F", nil, nil)
	require.Equal(testingT, http.StatusOK, page.Code)
	require.Contains(testingT, page.Header().Get("Content-Type"), "text/html")
	require.Contains(testingT, page.Body.String(), "Send Feedback")
}
