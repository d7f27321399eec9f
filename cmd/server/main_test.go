package main_test

import (
	"bytes"
	"strings"
	"testing"

	"gorm.io/gorm"

	servercmd "github.com/MarkoPoloResearchLab/feedbackflow/cmd/server"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
)

const (
	testEnvironmentKeyDatabaseDataSourceName = "DB_DSN"
	testEnvironmentKeySessionSecret          = "SESSION_SECRET"
	testEnvironmentKeyJWTSecret              = "JWT_SECRET"
	testPlaceholderDatabaseDSN               = "file:feedbackflow.db"
	testPlaceholderSessionSecret             = "session-secret-0123456789abcdef0123"
	testPlaceholderJWTSecret                 = "jwt-secret-0123456789"
	testMissingConfigurationMessage          = "missing required configuration"
	testFlagNameDatabaseDataSource           = "db-dsn"
	testFlagNameSessionSecret                = "session-secret"
	testFlagNameJWTSecret                    = "jwt-secret"
	testFlagIndicator                        = "--"
	testUsagePrefix                          = "Usage:"
)

func TestServerCommandMissingConfigurationShowsHelp(testingT *testing.T) {
	testCases := []struct {
		name                   string
		databaseDataSourceName string
		sessionSecret          string
		jwtSecret              string
		expectedMissingFlag    string
	}{
		{
			name:                   "missing database dsn",
			databaseDataSourceName: "",
			sessionSecret:          testPlaceholderSessionSecret,
			jwtSecret:              testPlaceholderJWTSecret,
			expectedMissingFlag:    testFlagNameDatabaseDataSource,
		},
		{
			name:                   "missing session secret",
			databaseDataSourceName: testPlaceholderDatabaseDSN,
			sessionSecret:          "",
			jwtSecret:              testPlaceholderJWTSecret,
			expectedMissingFlag:    testFlagNameSessionSecret,
		},
		{
			name:                   "missing jwt secret",
			databaseDataSourceName: testPlaceholderDatabaseDSN,
			sessionSecret:          testPlaceholderSessionSecret,
			jwtSecret:              "",
			expectedMissingFlag:    testFlagNameJWTSecret,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			testingT.Setenv(testEnvironmentKeyDatabaseDataSourceName, testCase.databaseDataSourceName)
			testingT.Setenv(testEnvironmentKeySessionSecret, testCase.sessionSecret)
			testingT.Setenv(testEnvironmentKeyJWTSecret, testCase.jwtSecret)

			databaseOpenerStub := func(configuration storage.Config) (*gorm.DB, error) {
				testingT.Fatalf("database opener invoked with %s", configuration.DataSourceName)
				return nil, nil
			}

			application := servercmd.NewServerApplication().
				WithDatabaseOpener(databaseOpenerStub).
				WithEnvironmentFile("")
			command, commandErr := application.Command()
			if commandErr != nil {
				testingT.Fatalf("unexpected command construction error: %v", commandErr)
			}

			commandOutput := &bytes.Buffer{}
			command.SetOut(commandOutput)
			command.SetErr(commandOutput)
			command.SetArgs([]string{})

			executionErr := command.Execute()
			if executionErr == nil {
				testingT.Fatalf("expected error for missing configuration")
			}

			combinedOutput := commandOutput.String()
			if !strings.Contains(combinedOutput, testMissingConfigurationMessage) {
				testingT.Fatalf("expected combined output to mention missing configuration: %s", combinedOutput)
			}

			if !strings.Contains(combinedOutput, testUsagePrefix) {
				testingT.Fatalf("expected combined output to include usage instructions: %s", combinedOutput)
			}

			expectedFlagIndicator := testFlagIndicator + testCase.expectedMissingFlag
			if !strings.Contains(combinedOutput, expectedFlagIndicator) {
				testingT.Fatalf("expected help output to include flag %s, actual output: %s", expectedFlagIndicator, combinedOutput)
			}
		})
	}
}
