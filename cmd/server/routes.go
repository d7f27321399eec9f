package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/auth"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/embed"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/httpapi"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/metrics"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/widgetform"
)

const (
	rootRoute                  = "/"
	dashboardRoute             = auth.DefaultRedirectPath
	authRoute                  = auth.AuthPagePath
	authRoutePrefix            = auth.AuthPagePath
	authRouteSignup            = "/signup"
	authRouteLogin             = "/login"
	authRouteLogout            = "/logout"
	publicRouteEmbedScript     = "/embed.js"
	publicRouteWidgetPage      = "/widget.html"
	publicRouteFeedback        = widgetform.FeedbackPath
	publicRouteEvents          = embed.EventsPath
	apiRoutePrefix             = "/api"
	apiRouteMe                 = "/me"
	apiRouteWidgets            = "/widgets"
	apiRouteWidget             = "/widgets/:id"
	apiRouteWidgetStats        = "/widgets/:id/stats"
	apiRouteWidgetEmbed        = "/widgets/:id/embed"
	apiRouteWidgetActivity     = "/widgets/:id/activity"
	apiRouteFeedback           = "/feedback"
	apiRouteFeedbackEvents     = "/feedback/events"
	apiRouteDashboard          = "/dashboard"
	operationsRouteHealth      = "/healthz"
	operationsRouteMetrics     = "/metrics"
	preflightPathParameter     = "path"
	preflightCatchAll          = "/*" + preflightPathParameter
	corsOriginWildcard         = "*"
	corsHeaderAuthorization    = "Authorization"
	corsHeaderContentType      = "Content-Type"
	corsHeaderRequestMethod    = "Access-Control-Request-Method"
	corsMaxAge                 = 12 * time.Hour
	publicPreflightRouteMethod = http.MethodPost
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsAllowedHeaders = []string{corsHeaderAuthorization, corsHeaderContentType}
	corsExposedHeaders = []string{corsHeaderContentType}
	publicAPIRoutes    = map[string]struct{}{
		strings.TrimPrefix(publicRouteFeedback, apiRoutePrefix): {},
		strings.TrimPrefix(publicRouteEvents, apiRoutePrefix):   {},
	}
)

func newPublicCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{corsOriginWildcard},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	})
}

// newAuthenticatedCORS allows credentialed calls from the dashboard origin.
// Without an origin only same-origin calls work.
func newAuthenticatedCORS(authenticatedOrigin string) gin.HandlerFunc {
	if authenticatedOrigin == "" {
		return func(context *gin.Context) {
			context.Next()
		}
	}
	return cors.New(cors.Config{
		AllowOrigins:     []string{authenticatedOrigin},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}

func registerOperationalRoutes(router *gin.Engine, healthHandlers *httpapi.HealthHandlers, metricsManager *metrics.Manager) {
	router.GET(operationsRouteHealth, healthHandlers.Healthz)
	router.GET(operationsRouteMetrics, gin.WrapH(metricsManager.Handler()))
}

func registerFrontendRoutes(
	router *gin.Engine,
	authManager *httpapi.AuthManager,
	publicHandlers *httpapi.PublicHandlers,
	webHandlers *httpapi.WebHandlers,
) {
	router.GET(rootRoute, func(context *gin.Context) {
		context.Redirect(http.StatusFound, dashboardRoute)
	})
	router.GET(dashboardRoute, authManager.RequireAuthenticatedWeb(), webHandlers.RenderDashboard)
	router.GET(authRoute, authManager.RedirectAuthenticated(), webHandlers.RenderAuthPage)

	publicGroup := router.Group(rootRoute)
	publicGroup.Use(newPublicCORS())
	publicGroup.GET(publicRouteEmbedScript, publicHandlers.EmbedScript)
	publicGroup.GET(publicRouteWidgetPage, publicHandlers.WidgetPage)
}

func registerBackendRoutes(
	router *gin.Engine,
	authManager *httpapi.AuthManager,
	publicHandlers *httpapi.PublicHandlers,
	adminHandlers *httpapi.AdminHandlers,
	authenticatedOrigin string,
) {
	publicCORS := newPublicCORS()
	authenticatedCORS := newAuthenticatedCORS(authenticatedOrigin)

	publicGroup := router.Group(rootRoute)
	publicGroup.Use(publicCORS)
	publicGroup.POST(publicRouteFeedback, publicHandlers.CreateFeedback)
	publicGroup.POST(publicRouteEvents, publicHandlers.RecordEvent)

	authGroup := router.Group(authRoutePrefix)
	authGroup.Use(authenticatedCORS)
	authGroup.POST(authRouteSignup, authManager.Signup)
	authGroup.POST(authRouteLogin, authManager.Login)
	authGroup.POST(authRouteLogout, authManager.Logout)

	apiGroup := router.Group(apiRoutePrefix)
	apiGroup.Use(authenticatedCORS)
	apiGroup.Use(authManager.RequireAuthenticatedJSON())
	apiGroup.GET(apiRouteMe, adminHandlers.Me)
	apiGroup.GET(apiRouteWidgets, adminHandlers.ListWidgets)
	apiGroup.POST(apiRouteWidgets, adminHandlers.CreateWidget)
	apiGroup.PATCH(apiRouteWidget, adminHandlers.UpdateWidget)
	apiGroup.DELETE(apiRouteWidget, adminHandlers.DeleteWidget)
	apiGroup.GET(apiRouteWidgetStats, adminHandlers.WidgetStats)
	apiGroup.GET(apiRouteWidgetEmbed, adminHandlers.WidgetEmbed)
	apiGroup.GET(apiRouteWidgetActivity, adminHandlers.WidgetActivity)
	apiGroup.GET(apiRouteFeedback, adminHandlers.ListFeedback)
	apiGroup.GET(apiRouteFeedbackEvents, adminHandlers.StreamFeedbackUpdates)
	apiGroup.GET(apiRouteDashboard, adminHandlers.DashboardSnapshot)

	registerAPIPreflightRoutes(router, publicCORS, authenticatedCORS)
}

// registerAPIPreflightRoutes answers OPTIONS for /api and /auth. Public POSTs
// get the wildcard policy; everything else gets the credentialed one.
func registerAPIPreflightRoutes(router *gin.Engine, publicCORS gin.HandlerFunc, authenticatedCORS gin.HandlerFunc) {
	router.OPTIONS(apiRoutePrefix+preflightCatchAll, func(context *gin.Context) {
		_, public := publicAPIRoutes[context.Param(preflightPathParameter)]
		if public && strings.EqualFold(context.GetHeader(corsHeaderRequestMethod), publicPreflightRouteMethod) {
			publicCORS(context)
		} else {
			authenticatedCORS(context)
		}
		if !context.IsAborted() {
			context.AbortWithStatus(http.StatusNoContent)
		}
	})
	router.OPTIONS(authRoutePrefix+preflightCatchAll, func(context *gin.Context) {
		authenticatedCORS(context)
		if !context.IsAborted() {
			context.AbortWithStatus(http.StatusNoContent)
		}
	})
}
