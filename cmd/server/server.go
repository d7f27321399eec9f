package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/auth"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/httpapi"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/metrics"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/ratelimit"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/task"
)

// feedbackServer holds the router and the long-lived components behind it.
type feedbackServer struct {
	router      *gin.Engine
	metrics     *metrics.Manager
	broadcaster *httpapi.FeedbackEventBroadcaster
	scheduler   *task.Scheduler
	redisClient *redis.Client
}

// Close releases the scheduler and the redis connection.
func (server *feedbackServer) Close() {
	server.scheduler.Stop()
	if server.redisClient != nil {
		_ = server.redisClient.Close()
	}
}

func buildServer(ctx context.Context, configuration ServerConfig, database *gorm.DB, logger *zap.Logger) (*feedbackServer, error) {
	server := &feedbackServer{
		metrics:     metrics.NewManager(),
		broadcaster: httpapi.NewFeedbackEventBroadcaster(),
	}

	limiters, redisClient := newRateLimiters(ctx, configuration, logger)
	server.redisClient = redisClient

	store := storage.NewStore(database)
	tokens, tokenErr := auth.NewTokenIssuer(configuration.JWTSecret)
	if tokenErr != nil {
		return nil, fmt.Errorf("token issuer: %w", tokenErr)
	}
	authManager, authErr := httpapi.NewAuthManager(httpapi.AuthConfig{
		Service:       auth.NewService(store),
		Tokens:        tokens,
		Admins:        store,
		SessionSecret: configuration.SessionSecret,
		SecureCookies: configuration.SecureCookies(),
		Logger:        logger,
	})
	if authErr != nil {
		return nil, fmt.Errorf("auth manager: %w", authErr)
	}

	publicHandlers, publicErr := httpapi.NewPublicHandlers(httpapi.PublicConfig{
		Store:        store,
		Limiter:      limiters.feedback,
		EventLimiter: limiters.events,
		Metrics:      server.metrics,
		Broadcaster:  server.broadcaster,
		Logger:       logger,
	})
	if publicErr != nil {
		return nil, fmt.Errorf("public handlers: %w", publicErr)
	}
	adminHandlers := httpapi.NewAdminHandlers(store, logger, configuration.PublicBaseURL, server.broadcaster)
	webHandlers := httpapi.NewWebHandlers(logger)

	sqlDatabase, sqlErr := database.DB()
	if sqlErr != nil {
		return nil, fmt.Errorf("database handle: %w", sqlErr)
	}
	healthHandlers := httpapi.NewHealthHandlers(sqlDatabase, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))
	router.Use(httpapi.RequestMetrics(server.metrics))

	registerOperationalRoutes(router, healthHandlers, server.metrics)
	if configuration.ServeMode.servesFrontend() {
		registerFrontendRoutes(router, authManager, publicHandlers, webHandlers)
	}
	if configuration.ServeMode.servesBackend() {
		registerBackendRoutes(router, authManager, publicHandlers, adminHandlers, configuration.AuthenticatedOrigin())
	}
	server.router = router

	rollupJob := task.NewEventRollupJob(database, logger, task.EventRollupConfig{RetentionDays: configuration.EventRetentionDays}, server.metrics)
	server.scheduler = task.NewScheduler(configuration.RollupInterval, logger, rollupJob)

	return server, nil
}

// publicLimiters budget feedback submissions and telemetry events separately.
type publicLimiters struct {
	feedback ratelimit.Limiter
	events   ratelimit.Limiter
}

var (
	feedbackLimitConfig = ratelimit.Config{MaxRequests: ratelimit.DefaultMaxRequests}
	eventLimitConfig    = ratelimit.Config{MaxRequests: ratelimit.DefaultEventMaxRequests}
)

// newRateLimiters shares counters through Redis when it is configured and
// reachable, and counts in memory otherwise.
func newRateLimiters(ctx context.Context, configuration ServerConfig, logger *zap.Logger) (publicLimiters, *redis.Client) {
	feedbackMemory, _ := ratelimit.NewMemoryLimiter(feedbackLimitConfig)
	eventMemory, _ := ratelimit.NewMemoryLimiter(eventLimitConfig)
	memoryLimiters := publicLimiters{feedback: feedbackMemory, events: eventMemory}
	if configuration.RedisAddress == "" {
		return memoryLimiters, nil
	}

	connectContext, cancel := context.WithTimeout(ctx, redisConnectTimeoutSeconds*time.Second)
	defer cancel()
	client, connectErr := ratelimit.NewRedisClient(connectContext, configuration.RedisAddress, configuration.RedisPassword)
	if connectErr != nil {
		logger.Warn(logEventRedisUnavailable, zap.String(logFieldAddress, configuration.RedisAddress), zap.Error(connectErr))
		return memoryLimiters, nil
	}
	feedbackRedis, feedbackErr := ratelimit.NewRedisLimiter(client, feedbackLimitConfig)
	eventRedis, eventErr := ratelimit.NewRedisLimiter(client, eventLimitConfig)
	if feedbackErr != nil || eventErr != nil {
		_ = client.Close()
		return memoryLimiters, nil
	}
	reportBackendError := func(err error) {
		logger.Warn(logEventRateLimitBackend, zap.Error(err))
	}
	return publicLimiters{
		feedback: ratelimit.FailOpen{Limiter: feedbackRedis, OnError: reportBackendError},
		events:   ratelimit.FailOpen{Limiter: eventRedis, OnError: reportBackendError},
	}, client
}
