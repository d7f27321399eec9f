package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/auth"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/httpapi"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/metrics"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/ratelimit"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/testutil"
)

const (
	testSessionSecret       = "test-session-secret-0123456789abcdef"
	testTokenSecret         = "test-token-secret-0123456789"
	testPublicBaseURL       = "https://feedback.example.com"
	testAdminPassword       = "correct horse battery"
	authorizationHeaderName = "Authorization"
	bearerTokenPrefix       = "Bearer "
	testUserAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
)

type apiHarness struct {
	router      *gin.Engine
	database    *gorm.DB
	store       *storage.Store
	events      *httpapi.FeedbackEventBroadcaster
	metrics     *metrics.Manager
	tokens      *auth.TokenIssuer
	authService *auth.Service
}

type harnessOption func(*harnessSettings)

type harnessSettings struct {
	limiter      ratelimit.Limiter
	eventLimiter ratelimit.Limiter
}

func withLimiter(limiter ratelimit.Limiter) harnessOption {
	return func(settings *harnessSettings) {
		settings.limiter = limiter
	}
}

func withEventLimiter(limiter ratelimit.Limiter) harnessOption {
	return func(settings *harnessSettings) {
		settings.eventLimiter = limiter
	}
}

func buildAPIHarness(testingT *testing.T, options ...harnessOption) apiHarness {
	testingT.Helper()

	settings := harnessSettings{}
	for _, option := range options {
		option(&settings)
	}
	if settings.limiter == nil {
		limiter, limiterErr := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: 1000})
		require.NoError(testingT, limiterErr)
		settings.limiter = limiter
	}
	if settings.eventLimiter == nil {
		eventLimiter, limiterErr := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: 1000})
		require.NoError(testingT, limiterErr)
		settings.eventLimiter = eventLimiter
	}

	gin.SetMode(gin.TestMode)
	logger, loggerErr := zap.NewDevelopment()
	require.NoError(testingT, loggerErr)

	database := testutil.OpenMigratedDatabase(testingT)
	store := storage.NewStore(database)
	metricsManager := metrics.NewManager()
	feedbackBroadcaster := httpapi.NewFeedbackEventBroadcaster()
	testingT.Cleanup(feedbackBroadcaster.Close)

	tokens, tokenErr := auth.NewTokenIssuer(testTokenSecret)
	require.NoError(testingT, tokenErr)
	authService := auth.NewService(store)
	authManager, authErr := httpapi.NewAuthManager(httpapi.AuthConfig{
		Service:       authService,
		Tokens:        tokens,
		Admins:        store,
		SessionSecret: testSessionSecret,
		Logger:        logger,
	})
	require.NoError(testingT, authErr)

	publicHandlers, publicErr := httpapi.NewPublicHandlers(httpapi.PublicConfig{
		Store:        store,
		Limiter:      settings.limiter,
		EventLimiter: settings.eventLimiter,
		Metrics:      metricsManager,
		Broadcaster:  feedbackBroadcaster,
		Logger:       logger,
	})
	require.NoError(testingT, publicErr)
	adminHandlers := httpapi.NewAdminHandlers(store, logger, testPublicBaseURL, feedbackBroadcaster)
	webHandlers := httpapi.NewWebHandlers(logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestMetrics(metricsManager))

	router.GET("/embed.js", publicHandlers.EmbedScript)
	router.GET("/widget.html", publicHandlers.WidgetPage)
	router.POST("/api/feedback", publicHandlers.CreateFeedback)
	router.POST("/api/events", publicHandlers.RecordEvent)

	router.GET("/auth", authManager.RedirectAuthenticated(), webHandlers.RenderAuthPage)
	router.POST("/auth/signup", authManager.Signup)
	router.POST("/auth/login", authManager.Login)
	router.POST("/auth/logout", authManager.Logout)
	router.GET("/dashboard", authManager.RequireAuthenticatedWeb(), webHandlers.RenderDashboard)

	apiGroup := router.Group("/api")
	apiGroup.Use(authManager.RequireAuthenticatedJSON())
	apiGroup.GET("/me", adminHandlers.Me)
	apiGroup.GET("/widgets", adminHandlers.ListWidgets)
	apiGroup.POST("/widgets", adminHandlers.CreateWidget)
	apiGroup.PATCH("/widgets/:id", adminHandlers.UpdateWidget)
	apiGroup.DELETE("/widgets/:id", adminHandlers.DeleteWidget)
	apiGroup.GET("/widgets/:id/stats", adminHandlers.WidgetStats)
	apiGroup.GET("/widgets/:id/embed", adminHandlers.WidgetEmbed)
	apiGroup.GET("/widgets/:id/activity", adminHandlers.WidgetActivity)
	apiGroup.GET("/feedback", adminHandlers.ListFeedback)
	apiGroup.GET("/feedback/events", adminHandlers.StreamFeedbackUpdates)
	apiGroup.GET("/dashboard", adminHandlers.DashboardSnapshot)

	return apiHarness{
		router:      router,
		database:    database,
		store:       store,
		events:      feedbackBroadcaster,
		metrics:     metricsManager,
		tokens:      tokens,
		authService: authService,
	}
}

func performJSONRequest(testingT *testing.T, router *gin.Engine, method string, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var requestBody io.Reader
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		require.NoError(testingT, encodeErr)
		requestBody = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, requestBody)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func performRawRequest(router *gin.Engine, method string, path string, contentType string, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON(testingT *testing.T, recorder *httptest.ResponseRecorder, target any) {
	testingT.Helper()
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), target), recorder.Body.String())
}

func (harness apiHarness) createAdmin(testingT *testing.T, email string) (model.Admin, map[string]string) {
	testingT.Helper()
	admin, signupErr := harness.authService.Signup(context.Background(), email, testAdminPassword)
	require.NoError(testingT, signupErr)
	token, tokenErr := harness.tokens.Issue(admin.ID, admin.Email)
	require.NoError(testingT, tokenErr)
	return admin, map[string]string{authorizationHeaderName: bearerTokenPrefix + token}
}

func (harness apiHarness) createWidget(testingT *testing.T, adminID string, siteURL string) model.Widget {
	testingT.Helper()
	widget, widgetErr := model.NewWidget(model.WidgetInput{AdminID: adminID, SiteURL: siteURL})
	require.NoError(testingT, widgetErr)
	require.NoError(testingT, harness.store.CreateWidget(context.Background(), &widget))
	return widget
}

func (harness apiHarness) submitFeedback(testingT *testing.T, widgetID string, message string) *httptest.ResponseRecorder {
	testingT.Helper()
	return performJSONRequest(testingT, harness.router, http.MethodPost, "/api/feedback", map[string]string{
		"widget_id": widgetID,
		"message":   message,
		"page_url":  "https://shop.example.com/checkout",
	}, map[string]string{"User-Agent": testUserAgent})
}
