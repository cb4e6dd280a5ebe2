package context_quality

import "fieldops-insight-service/service/models"

// inboxDefinition 全渠道收件箱会话
func inboxDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainInbox,
		IDKey:            "conversation_id",
		EntityNoun:       "conversation",
		EntityType:       "conversation",
		Table:            "conversations",
		DefaultThreshold: 0.30,
		Load:             loadByID[models.Conversation](),
		Signals: []Signal{
			presence("channel", 50, func(c *models.Conversation) bool { return hasText(c.Channel) }),
			presence("status", 50, func(c *models.Conversation) bool { return hasText(c.Status) }),
			presence("contact", 150, func(c *models.Conversation) bool { return c.ContactID != nil }),
			presence("agent", 100, func(c *models.Conversation) bool { return c.AgentID != nil }),
			related("messages", 400, 3, &models.ConversationMessage{}, "conversation_id = ?"),
			related("has_inbound", 250, 0, &models.ConversationMessage{}, "conversation_id = ? AND direction = ?", "inbound"),
		},
	}
}
