package intelligence

import (
	"errors"
	"testing"

	"fieldops-insight-service/service/config"
	"fieldops-insight-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticOverrides map[string]config.PersonaOverride

func (s staticOverrides) GetPersonaPolicyOverride(key string) config.PersonaOverride {
	return s[key]
}

func TestDefaultPersonaPolicy(t *testing.T) {
	registry, err := NewPersonaRegistry()
	require.NoError(t, err)

	expected := map[string]struct {
		domain    string
		threshold float64
		skip      bool
	}{
		"ticket_analyst":     {models.DomainTickets, 0.30, true},
		"inbox_analyst":      {models.DomainInbox, 0.30, true},
		"project_advisor":    {models.DomainProjects, 0.35, true},
		"campaign_optimizer": {models.DomainCampaigns, 0.40, true},
		"dispatch_planner":   {models.DomainDispatch, 0.35, true},
		"vendor_analyst":     {models.DomainVendors, 0.25, false},
		"performance_coach":  {models.DomainPerformance, 0.30, true},
		"customer_success":   {models.DomainCustomers, 0.25, false},
	}

	assert.Len(t, registry.List(), len(expected))
	for key, want := range expected {
		p, err := registry.Get(key)
		require.NoError(t, err, key)
		assert.Equal(t, want.domain, p.Domain, key)
		assert.Equal(t, want.threshold, p.MinContextQuality, key)
		assert.Equal(t, want.skip, p.SkipOnLowQuality, key)
	}

	// 列表按领域顺序
	list := registry.List()
	for i, domain := range models.AllDomains {
		assert.Equal(t, domain, list[i].Domain)
	}
}

func TestPersonaRegistryUnknownKey(t *testing.T) {
	registry, err := NewPersonaRegistry()
	require.NoError(t, err)

	_, err = registry.Get("")
	assert.True(t, errors.Is(err, ErrUnknownPersona))
	_, err = registry.Get("sales_coach")
	assert.True(t, errors.Is(err, ErrUnknownPersona))
	assert.Empty(t, registry.ForDomain("fiber"))
}

func TestPersonaRegistryValidation(t *testing.T) {
	_, err := NewPersonaRegistry(Persona{Key: "x", Domain: "nowhere"})
	assert.Error(t, err)

	_, err = NewPersonaRegistry(Persona{Key: "x", Domain: models.DomainTickets, MinContextQuality: 1.5})
	assert.Error(t, err)

	_, err = NewPersonaRegistry(Persona{Key: "x", Domain: models.DomainTickets, ScanSchedule: "every day"})
	assert.Error(t, err)

	_, err = NewPersonaRegistry(
		Persona{Key: "x", Domain: models.DomainTickets},
		Persona{Key: "x", Domain: models.DomainInbox},
	)
	assert.Error(t, err)
}

func TestPersonaRegistryWithOverrides(t *testing.T) {
	registry, err := NewPersonaRegistry()
	require.NoError(t, err)

	threshold := 0.5
	skip := false
	limit := 5
	overridden, err := registry.WithOverrides(staticOverrides{
		"ticket_analyst": {MinContextQuality: &threshold, SkipOnLowQuality: &skip, ScanLimit: &limit},
	})
	require.NoError(t, err)

	p, _ := overridden.Get("ticket_analyst")
	assert.Equal(t, 0.5, p.MinContextQuality)
	assert.False(t, p.SkipOnLowQuality)
	assert.Equal(t, 5, p.ScanLimit)

	// 原注册表不受影响
	orig, _ := registry.Get("ticket_analyst")
	assert.Equal(t, 0.30, orig.MinContextQuality)
	assert.True(t, orig.SkipOnLowQuality)

	other, _ := overridden.Get("inbox_analyst")
	assert.Equal(t, 0.30, other.MinContextQuality)

	bad := "not a cron"
	_, err = registry.WithOverrides(staticOverrides{"inbox_analyst": {ScanSchedule: &bad}})
	assert.Error(t, err)
}
