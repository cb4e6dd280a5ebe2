package context_quality

import "fieldops-insight-service/service/models"

// ticketsDefinition 工单领域：描述与评论数量比状态/优先级更能决定分析质量
// 状态与优先级仅在偏离建单默认值（new/normal）时视为有效信号
func ticketsDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainTickets,
		IDKey:            "ticket_id",
		EntityNoun:       "ticket",
		EntityType:       "ticket",
		Table:            "tickets",
		DefaultThreshold: 0.30,
		Load:             loadByID[models.Ticket](),
		Signals: []Signal{
			presence("title", 150, func(t *models.Ticket) bool { return hasText(t.Title) }),
			presence("description", 200, func(t *models.Ticket) bool { return hasText(t.Description) }),
			presence("status", 25, func(t *models.Ticket) bool { return hasText(t.Status) && t.Status != "new" }),
			presence("priority", 25, func(t *models.Ticket) bool { return hasText(t.Priority) && t.Priority != "normal" }),
			presence("customer", 100, func(t *models.Ticket) bool { return t.ContactID != nil }),
			presence("assignee", 100, func(t *models.Ticket) bool { return t.AssigneeID != nil }),
			related("comments", 250, 2, &models.TicketComment{}, "ticket_id = ?"),
			related("sla_events", 150, 1, &models.TicketSLAEvent{}, "ticket_id = ?"),
		},
	}
}
