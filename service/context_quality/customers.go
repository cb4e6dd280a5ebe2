package context_quality

import "fieldops-insight-service/service/models"

// customersDefinition 客户：跨会话、工单、订阅的关联数据
func customersDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainCustomers,
		IDKey:            "contact_id",
		EntityNoun:       "contact",
		EntityType:       "contact",
		Table:            "contacts",
		DefaultThreshold: 0.25,
		Load:             loadByID[models.Contact](),
		Signals: []Signal{
			presence("name", 100, func(c *models.Contact) bool { return hasText(c.FullName) }),
			presence("email", 100, func(c *models.Contact) bool { return hasText(c.Email) }),
			presence("phone", 50, func(c *models.Contact) bool { return hasText(c.Phone) }),
			presence("organization", 100, func(c *models.Contact) bool { return hasText(c.Organization) }),
			related("conversations", 200, 2, &models.Conversation{}, "contact_id = ?"),
			related("tickets", 200, 2, &models.Ticket{}, "contact_id = ?"),
			related("subscriptions", 250, 1, &models.Subscription{}, "contact_id = ?"),
		},
	}
}
