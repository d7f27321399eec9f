package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/storage"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/testutil"
)

const (
	testCaseDescriptionMemoryModeParameter  = "includes memory mode parameter"
	testCaseDescriptionSharedCacheParameter = "includes shared cache parameter"
	testCaseDescriptionForeignKeysParameter = "enforces foreign keys"
	sqliteModeMemoryParameter               = "mode=memory"
	sqliteSharedCacheParameter              = "cache=shared"
	sqliteForeignKeysParameter              = "_foreign_keys=on"
)

func TestNewSQLiteTestDatabaseProvidesInMemoryConfiguration(testingT *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)
	configuration := sqliteDatabase.Configuration()

	require.Equal(testingT, storage.DriverNameSQLite, configuration.DriverName)

	testCases := []struct {
		name              string
		expectedSubstring string
	}{
		{name: testCaseDescriptionMemoryModeParameter, expectedSubstring: sqliteModeMemoryParameter},
		{name: testCaseDescriptionSharedCacheParameter, expectedSubstring: sqliteSharedCacheParameter},
		{name: testCaseDescriptionForeignKeysParameter, expectedSubstring: sqliteForeignKeysParameter},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			require.Contains(testingT, configuration.DataSourceName, testCase.expectedSubstring)
		})
	}
}

func TestNewSQLiteTestDatabaseReturnsUniqueDataSourceNames(testingT *testing.T) {
	firstDatabase := testutil.NewSQLiteTestDatabase(testingT)
	secondDatabase := testutil.NewSQLiteTestDatabase(testingT)

	require.NotEqual(testingT, firstDatabase.DataSourceName(), secondDatabase.DataSourceName())
}

func TestOpenMigratedDatabaseCreatesSchema(testingT *testing.T) {
	database := testutil.OpenMigratedDatabase(testingT)
	for _, tableName := range []string{"admins", "widgets", "feedbacks", "events", "event_rollups"} {
		require.True(testingT, database.Migrator().HasTable(tableName), tableName)
	}
}
