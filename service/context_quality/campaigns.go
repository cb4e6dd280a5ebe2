package context_quality

import "fieldops-insight-service/service/models"

// campaignsDefinition 营销活动：收件人规模与实际送达是主要信号
func campaignsDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainCampaigns,
		IDKey:            "campaign_id",
		EntityNoun:       "campaign",
		EntityType:       "campaign",
		Table:            "campaigns",
		DefaultThreshold: 0.30,
		Load:             loadByID[models.Campaign](),
		Signals: []Signal{
			presence("name", 100, func(c *models.Campaign) bool { return hasText(c.Name) }),
			presence("template", 200, func(c *models.Campaign) bool { return c.TemplateID != nil }),
			presence("status", 50, func(c *models.Campaign) bool { return hasText(c.Status) }),
			presence("audience", 100, func(c *models.Campaign) bool { return len(c.AudienceFilter) > 0 }),
			related("recipients", 350, 10, &models.CampaignRecipient{}, "campaign_id = ?"),
			related("delivered", 200, 5, &models.CampaignRecipient{}, "campaign_id = ? AND status = ?", "delivered"),
		},
	}
}
