package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandlers report process liveness and database reachability.
type HealthHandlers struct {
	database Pinger
	logger   *zap.Logger
}

func NewHealthHandlers(database Pinger, logger *zap.Logger) *HealthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandlers{database: database, logger: logger}
}

// Healthz answers 200 while the database responds and 503 otherwise.
func (handlers *HealthHandlers) Healthz(ginContext *gin.Context) {
	if handlers.database != nil {
		pingContext, cancel := context.WithTimeout(ginContext.Request.Context(), healthCheckTimeout)
		defer cancel()
		if pingErr := handlers.database.PingContext(pingContext); pingErr != nil {
			handlers.logger.Warn("health_ping", zap.Error(pingErr))
			ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyStatus: "unavailable"})
			return
		}
	}
	ginContext.JSON(http.StatusOK, gin.H{jsonKeyStatus: statusValueOK})
}
