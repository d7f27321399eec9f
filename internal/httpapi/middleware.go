package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/metrics"
)

const unmatchedRouteLabel = "unmatched"

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}

// RequestMetrics records request counts and latency labelled by route template.
func RequestMetrics(manager *metrics.Manager) gin.HandlerFunc {
	return func(context *gin.Context) {
		if manager == nil {
			context.Next()
			return
		}
		start := time.Now()
		context.Next()
		route := context.FullPath()
		if route == "" {
			route = unmatchedRouteLabel
		}
		manager.RecordHTTPRequest(route, context.Request.Method, context.Writer.Status(), time.Since(start))
	}
}
