package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldops-insight-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type ConfigServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	service *ConfigService
}

func (suite *ConfigServiceTestSuite) SetupTest() {
	suite.testDB = testutil.NewTestDB()
	suite.service = NewConfigService(suite.testDB.DB)
}

func (suite *ConfigServiceTestSuite) TearDownTest() {
	suite.testDB.Close()
}

func (suite *ConfigServiceTestSuite) writeFile(name, content string) string {
	path := filepath.Join(suite.T().TempDir(), name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (suite *ConfigServiceTestSuite) TestDefaults() {
	suite.Equal(DefaultReportingThreshold, suite.service.GetReportingThreshold())
	suite.Equal(DefaultBatchConcurrency, suite.service.GetBatchConcurrency())
	suite.Equal(DefaultBatchLookbackDays, suite.service.GetBatchLookbackDays())
	suite.Equal(DefaultPendingExpiryMinutes, suite.service.GetPendingExpiryMinutes())
	suite.True(suite.service.GetPersonaPolicyOverride("ticket_analyst").IsEmpty())

	_, err := suite.service.GetSystemConfig("missing.key")
	suite.True(errors.Is(err, ErrConfigNotFound))
}

func (suite *ConfigServiceTestSuite) TestDatabaseOverridesFile() {
	path := suite.writeFile("insight.yaml", `
intelligence:
  reporting_threshold: 0.6
  batch:
    concurrency: 8
`)
	suite.Require().NoError(suite.service.Manager().LoadFile(path))

	suite.Equal(0.6, suite.service.GetReportingThreshold())
	suite.Equal(8, suite.service.GetBatchConcurrency())

	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyReportingThreshold, "0.7", ""))
	suite.Equal(0.7, suite.service.GetReportingThreshold())

	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyReportingThreshold, "0.75", ""))
	suite.Equal(0.75, suite.service.GetReportingThreshold())
}

func (suite *ConfigServiceTestSuite) TestInvalidValuesFallBackToDefaults() {
	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyReportingThreshold, "1.5", ""))
	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyBatchConcurrency, "lots", ""))
	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyBatchLookbackDays, "0", ""))

	suite.Equal(DefaultReportingThreshold, suite.service.GetReportingThreshold())
	suite.Equal(DefaultBatchConcurrency, suite.service.GetBatchConcurrency())
	suite.Equal(DefaultBatchLookbackDays, suite.service.GetBatchLookbackDays())
}

func (suite *ConfigServiceTestSuite) TestPersonaOverrides() {
	path := suite.writeFile("insight.json", `{"persona": {"ticket_analyst": {"scan_limit": 10, "scan_schedule": "0 0 1 * * *"}}}`)
	suite.Require().NoError(suite.service.Manager().LoadFile(path))

	suite.Require().NoError(suite.service.SetPersonaPolicy("ticket_analyst", "min_context_quality", 0.45))
	suite.Require().NoError(suite.service.SetPersonaPolicy("ticket_analyst", "skip_on_low_quality", false))
	suite.Error(suite.service.SetPersonaPolicy("ticket_analyst", "display_name", "x"))

	o := suite.service.GetPersonaPolicyOverride("ticket_analyst")
	suite.Require().NotNil(o.MinContextQuality)
	suite.Equal(0.45, *o.MinContextQuality)
	suite.Require().NotNil(o.SkipOnLowQuality)
	suite.False(*o.SkipOnLowQuality)
	suite.Require().NotNil(o.ScanLimit)
	suite.Equal(10, *o.ScanLimit)
	suite.Require().NotNil(o.ScanSchedule)
	suite.Equal("0 0 1 * * *", *o.ScanSchedule)

	// 越界阈值被忽略
	suite.Require().NoError(suite.service.SetPersonaPolicy("inbox_analyst", "min_context_quality", "2"))
	suite.Nil(suite.service.GetPersonaPolicyOverride("inbox_analyst").MinContextQuality)
}

func (suite *ConfigServiceTestSuite) TestGetAllSystemConfigs() {
	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyBatchConcurrency, "2", "并发"))

	items, err := suite.service.GetAllSystemConfigs()
	suite.Require().NoError(err)
	suite.Len(items, 7)

	sources := make(map[string]string)
	for _, item := range items {
		sources[item.Key] = item.Source
	}
	suite.Equal("database", sources[ConfigKeyBatchConcurrency])
	suite.Equal("default", sources[ConfigKeyReportingThreshold])
	suite.Equal("default", sources[ConfigKeyInvokeRateLimit])
}

func (suite *ConfigServiceTestSuite) TestInvokeRateLimit() {
	limits := suite.service.GetInvokeRateLimit()
	suite.Equal(DefaultInvokeRateLimit, limits.PerInitiator)
	suite.Equal(0, limits.PerPersona)
	suite.Equal(time.Minute, limits.Window)

	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyInvokeRateLimit, "0", ""))
	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyInvokePersonaLimit, "100", ""))
	suite.Require().NoError(suite.service.SetSystemConfig(ConfigKeyInvokeRateWindow, "-5", ""))
	limits = suite.service.GetInvokeRateLimit()
	suite.Equal(0, limits.PerInitiator)
	suite.Equal(100, limits.PerPersona)
	suite.Equal(time.Minute, limits.Window)
}

func TestConfigServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigServiceTestSuite))
}

func TestConfigManagerCachesMisses(t *testing.T) {
	testDB := testutil.NewTestDB()
	defer testDB.Close()

	var queries int
	require.NoError(t, testDB.DB.Callback().Query().After("gorm:query").Register("count_config_queries", func(tx *gorm.DB) {
		if tx.Statement.Table == "system_configs" {
			queries++
		}
	}))

	manager := NewConfigManager(testDB.DB)
	for i := 0; i < 3; i++ {
		_, err := manager.GetConfig(ConfigKeyInvokeRateLimit)
		assert.ErrorIs(t, err, ErrConfigNotFound)
	}
	assert.Equal(t, 1, queries)

	require.NoError(t, manager.SetConfig(ConfigKeyInvokeRateLimit, "5", ""))
	value, err := manager.GetConfig(ConfigKeyInvokeRateLimit)
	require.NoError(t, err)
	assert.Equal(t, "5", value)
}

func TestLoadFileRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insight.toml")
	require.NoError(t, os.WriteFile(path, []byte("a = 1"), 0o644))

	err := NewConfigManager(nil).LoadFile(path)
	assert.Error(t, err)
}

func TestConfigManagerWithoutDatabase(t *testing.T) {
	manager := NewConfigManager(nil)
	manager.SetCacheExpiry(0)

	path := filepath.Join(t.TempDir(), "insight.yml")
	require.NoError(t, os.WriteFile(path, []byte("persona:\n  vendor_analyst:\n    skip_on_low_quality: true\n"), 0o644))
	require.NoError(t, manager.LoadFile(path))

	value, err := manager.GetConfig("persona.vendor_analyst.skip_on_low_quality")
	require.NoError(t, err)
	assert.Equal(t, "true", value)
	assert.Error(t, manager.SetConfig("k", "v", ""))
}
