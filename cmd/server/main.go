package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/auth"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
)

const (
	commandUseName                   = "server"
	commandShortDescription          = "Run the FeedbackFlow server"
	commandLongDescription           = "Launch the FeedbackFlow HTTP server: embed loader, widget form, admin API and dashboard"
	missingConfigurationMessage      = "missing required configuration"
	loggerCreationErrorMessage       = "logger"
	logEventListening                = "listening"
	logEventShuttingDown             = "shutting_down"
	logEventRedisUnavailable         = "redis_unavailable"
	logEventRateLimitBackend         = "rate_limit_backend_error"
	logFieldAddress                  = "addr"
	logFieldServeMode                = "serve_mode"
	flagNameApplicationAddress       = "app-addr"
	flagNameDatabaseDriver           = "db-driver"
	flagNameDatabaseDataSourceName   = "db-dsn"
	flagNamePublicBaseURL            = "public-base-url"
	flagNameSessionSecret            = "session-secret"
	flagNameJWTSecret                = "jwt-secret"
	flagNameRedisAddress             = "redis-addr"
	flagNameRedisPassword            = "redis-password"
	flagNameServeMode                = "serve-mode"
	flagNameEventRetentionDays       = "event-retention-days"
	flagNameRollupInterval           = "rollup-interval"
	flagUsageApplicationAddress      = "address for the HTTP server to listen on"
	flagUsageDatabaseDriver          = "database driver (sqlite or postgres)"
	flagUsageDatabaseDataSourceName  = "database connection string"
	flagUsagePublicBaseURL           = "public base URL used in embed codes and as the dashboard origin"
	flagUsageSessionSecret           = "secret used to sign dashboard session cookies (at least 32 bytes)"
	flagUsageJWTSecret               = "secret used to sign API bearer tokens"
	flagUsageRedisAddress            = "redis address for the shared rate limiter"
	flagUsageRedisPassword           = "redis password"
	flagUsageServeMode               = "which routes to serve: monolith, web or api"
	flagUsageEventRetentionDays      = "days of raw events to keep after rollup (0 keeps everything)"
	flagUsageRollupInterval          = "interval between event rollup runs"
	environmentKeyApplicationAddress = "APP_ADDR"
	environmentKeyDatabaseDriver     = "DB_DRIVER"
	environmentKeyDatabaseDataSource = "DB_DSN"
	environmentKeyPublicBaseURL      = "PUBLIC_BASE_URL"
	environmentKeySessionSecret      = "SESSION_SECRET"
	environmentKeyJWTSecret          = "JWT_SECRET"
	environmentKeyRedisAddress       = "REDIS_ADDR"
	environmentKeyRedisPassword      = "REDIS_PASSWORD"
	environmentKeyServeMode          = "SERVE_MODE"
	environmentKeyEventRetentionDays = "EVENT_RETENTION_DAYS"
	environmentKeyRollupInterval     = "ROLLUP_INTERVAL"
	defaultApplicationAddress        = ":8080"
	defaultDatabaseDriver            = storage.DriverNameSQLite
	defaultServeMode                 = string(ServeModeMonolith)
	defaultEventRetentionDays        = "0"
	defaultRollupInterval            = "1h"
	defaultEnvironmentFile           = ".env"
	loggerContextOpenDatabase        = "open_db"
	loggerContextAutoMigrate         = "migrate"
	loggerContextBuildRouter         = "build_router"
	loggerContextServer              = "server"
	readHeaderTimeoutSeconds         = 5
	shutdownTimeoutSeconds           = 10
	redisConnectTimeoutSeconds       = 5
	unexpectedArgumentsMessage       = "unexpected command arguments"
	commandInitializationFailure     = "failed to configure command"
	environmentFileFailure           = "failed to load environment file"
	flagNotDefinedMessage            = "flag %s not defined"
	environmentConfigurationError    = "failed to apply environment configuration"
	invalidConfigurationMessage      = "invalid configuration"
	invalidPublicBaseURLMessage      = "public base url must be an absolute http(s) url"
	invalidEventRetentionDaysMessage = "event retention days must not be negative"
	invalidRollupIntervalMessage     = "rollup interval must be positive"
	secureCookieScheme               = "https"
)

type configurationFlag struct {
	environmentKey string
	flagName       string
	defaultValue   string
	usage          string
}

var configurationFlags = []configurationFlag{
	{environmentKeyApplicationAddress, flagNameApplicationAddress, defaultApplicationAddress, flagUsageApplicationAddress},
	{environmentKeyDatabaseDriver, flagNameDatabaseDriver, defaultDatabaseDriver, flagUsageDatabaseDriver},
	{environmentKeyDatabaseDataSource, flagNameDatabaseDataSourceName, "", flagUsageDatabaseDataSourceName},
	{environmentKeyPublicBaseURL, flagNamePublicBaseURL, "", flagUsagePublicBaseURL},
	{environmentKeySessionSecret, flagNameSessionSecret, "", flagUsageSessionSecret},
	{environmentKeyJWTSecret, flagNameJWTSecret, "", flagUsageJWTSecret},
	{environmentKeyRedisAddress, flagNameRedisAddress, "", flagUsageRedisAddress},
	{environmentKeyRedisPassword, flagNameRedisPassword, "", flagUsageRedisPassword},
	{environmentKeyServeMode, flagNameServeMode, defaultServeMode, flagUsageServeMode},
	{environmentKeyEventRetentionDays, flagNameEventRetentionDays, defaultEventRetentionDays, flagUsageEventRetentionDays},
	{environmentKeyRollupInterval, flagNameRollupInterval, defaultRollupInterval, flagUsageRollupInterval},
}

var requiredFlagNames = []string{flagNameDatabaseDataSourceName, flagNameSessionSecret, flagNameJWTSecret}

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress     string
	DatabaseDriverName     string
	DatabaseDataSourceName string
	PublicBaseURL          string
	SessionSecret          string
	JWTSecret              string
	RedisAddress           string
	RedisPassword          string
	ServeMode              ServeMode
	EventRetentionDays     int
	RollupInterval         time.Duration
}

// SecureCookies reports whether session cookies should carry the Secure flag.
func (configuration ServerConfig) SecureCookies() bool {
	return strings.HasPrefix(configuration.PublicBaseURL, secureCookieScheme+"://")
}

// AuthenticatedOrigin is the origin allowed to make credentialed API calls.
func (configuration ServerConfig) AuthenticatedOrigin() string {
	if configuration.PublicBaseURL == "" {
		return ""
	}
	parsed, parseErr := url.Parse(configuration.PublicBaseURL)
	if parseErr != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// DatabaseOpener opens a database connection.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
	environmentFile     string
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
		environmentFile:     defaultEnvironmentFile,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// WithEnvironmentFile overrides the dotenv file read before configuration. An
// empty path disables it.
func (application *ServerApplication) WithEnvironmentFile(path string) *ServerApplication {
	application.environmentFile = path
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	if loadErr := application.loadEnvironmentFile(); loadErr != nil {
		return nil, loadErr
	}

	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *ServerApplication) loadEnvironmentFile() error {
	if application.environmentFile == "" {
		return nil
	}
	if loadErr := godotenv.Load(application.environmentFile); loadErr != nil && !errors.Is(loadErr, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", environmentFileFailure, loadErr)
	}
	return nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	for _, definition := range configurationFlags {
		application.configurationLoader.SetDefault(definition.environmentKey, definition.defaultValue)
		commandFlags.String(definition.flagName, definition.defaultValue, definition.usage)
	}
	application.configurationLoader.AutomaticEnv()

	for _, definition := range configurationFlags {
		if bindErr := application.bindFlag(commandFlags, definition.environmentKey, definition.flagName); bindErr != nil {
			return bindErr
		}
	}

	for _, definition := range configurationFlags {
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, definition.environmentKey, definition.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	for _, flagName := range requiredFlagNames {
		if markErr := command.MarkFlagRequired(flagName); markErr != nil {
			return markErr
		}
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadServerConfig() (ServerConfig, error) {
	loader := application.configurationLoader
	serverConfig := ServerConfig{
		ApplicationAddress:     strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		DatabaseDriverName:     strings.TrimSpace(loader.GetString(environmentKeyDatabaseDriver)),
		DatabaseDataSourceName: strings.TrimSpace(loader.GetString(environmentKeyDatabaseDataSource)),
		PublicBaseURL:          auth.NormalizeBaseURL(loader.GetString(environmentKeyPublicBaseURL)),
		SessionSecret:          strings.TrimSpace(loader.GetString(environmentKeySessionSecret)),
		JWTSecret:              strings.TrimSpace(loader.GetString(environmentKeyJWTSecret)),
		RedisAddress:           strings.TrimSpace(loader.GetString(environmentKeyRedisAddress)),
		RedisPassword:          loader.GetString(environmentKeyRedisPassword),
	}

	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return ServerConfig{}, validationErr
	}

	serveMode, serveModeErr := ParseServeMode(loader.GetString(environmentKeyServeMode))
	if serveModeErr != nil {
		return ServerConfig{}, fmt.Errorf("%s: %w", invalidConfigurationMessage, serveModeErr)
	}
	serverConfig.ServeMode = serveMode

	if serverConfig.PublicBaseURL != "" {
		parsed, parseErr := url.Parse(serverConfig.PublicBaseURL)
		if parseErr != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return ServerConfig{}, fmt.Errorf("%s: %s", invalidConfigurationMessage, invalidPublicBaseURLMessage)
		}
	}

	retentionDays := loader.GetInt(environmentKeyEventRetentionDays)
	if retentionDays < 0 {
		return ServerConfig{}, fmt.Errorf("%s: %s", invalidConfigurationMessage, invalidEventRetentionDaysMessage)
	}
	serverConfig.EventRetentionDays = retentionDays

	rollupInterval := loader.GetDuration(environmentKeyRollupInterval)
	if rollupInterval <= 0 {
		return ServerConfig{}, fmt.Errorf("%s: %s", invalidConfigurationMessage, invalidRollupIntervalMessage)
	}
	serverConfig.RollupInterval = rollupInterval

	return serverConfig, nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, configurationErr := application.loadServerConfig()
	if configurationErr != nil {
		return configurationErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     serverConfig.DatabaseDriverName,
		DataSourceName: serverConfig.DatabaseDataSourceName,
	})
	if databaseErr != nil {
		logger.Fatal(loggerContextOpenDatabase, zap.Error(databaseErr))
	}

	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		logger.Fatal(loggerContextAutoMigrate, zap.Error(migrateErr))
	}

	runtimeContext, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, buildErr := buildServer(runtimeContext, serverConfig, database, logger)
	if buildErr != nil {
		logger.Fatal(loggerContextBuildRouter, zap.Error(buildErr))
	}
	defer server.Close()

	server.scheduler.Start(runtimeContext)

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           server.router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	serveErrors := make(chan error, 1)
	go func() {
		logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress), zap.String(logFieldServeMode, string(serverConfig.ServeMode)))
		serveErrors <- httpServer.ListenAndServe()
	}()

	select {
	case serveErr := <-serveErrors:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Fatal(loggerContextServer, zap.Error(serveErr))
		}
	case <-runtimeContext.Done():
		logger.Info(logEventShuttingDown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
		defer cancel()
		server.broadcaster.Close()
		if shutdownErr := httpServer.Shutdown(shutdownContext); shutdownErr != nil {
			logger.Warn(loggerContextServer, zap.Error(shutdownErr))
		}
	}

	return nil
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.DatabaseDataSourceName == "" {
		missingParameters = append(missingParameters, flagNameDatabaseDataSourceName)
	}

	if configuration.SessionSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionSecret)
	}

	if configuration.JWTSecret == "" {
		missingParameters = append(missingParameters, flagNameJWTSecret)
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
