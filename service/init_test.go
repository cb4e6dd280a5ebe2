package service

import (
	"context"
	"testing"

	"fieldops-insight-service/service/config"
	"fieldops-insight-service/service/intelligence"
	"fieldops-insight-service/service/models"
	"fieldops-insight-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServicesAppliesPersonaOverrides(t *testing.T) {
	testDB := testutil.NewTestDB()
	defer testDB.Close()

	cfg := config.NewConfigService(testDB.DB)
	require.NoError(t, cfg.SetPersonaPolicy("vendor_analyst", "skip_on_low_quality", true))

	services, err := NewServices(testDB.DB, cfg, Options{})
	require.NoError(t, err)

	persona, err := services.Personas.Get("vendor_analyst")
	require.NoError(t, err)
	assert.True(t, persona.SkipOnLowQuality)
	assert.Equal(t, "noop", services.Publisher.Name())
	assert.Equal(t, models.AllDomains, services.Scorers.Domains())

	// 未配置分析服务时不跳过的角色落 failed 记录
	vendor := testutil.NewTestDataFactory(testDB.DB).CreateFullVendor()
	record, err := services.Gate.Invoke(context.Background(), intelligenceRequest("vendor_analyst", vendor.ID))
	assert.Error(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.InsightStatusFailed, record.Status)

	require.NoError(t, services.Ping(context.Background()))
}

func TestNewServicesRejectsInvalidOverride(t *testing.T) {
	testDB := testutil.NewTestDB()
	defer testDB.Close()

	cfg := config.NewConfigService(testDB.DB)
	require.NoError(t, cfg.SetPersonaPolicy("ticket_analyst", "scan_schedule", "sometimes"))

	_, err := NewServices(testDB.DB, cfg, Options{})
	assert.Error(t, err)
}

func TestPublishersFromEnvDefaultsToNoop(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("MQTT_BROKER", "")

	publisher, err := publishersFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "noop", publisher.Name())

	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	publisher, err = publishersFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "multi", publisher.Name())
	assert.NoError(t, publisher.Close())
}

func intelligenceRequest(personaKey string, id int64) intelligence.InvokeRequest {
	return intelligence.InvokeRequest{
		PersonaKey: personaKey,
		Params:     map[string]interface{}{"vendor_id": id},
	}
}
