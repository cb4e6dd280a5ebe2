package context_quality

import "fieldops-insight-service/service/models"

// dispatchDefinition 派工单：技术员指派与排期决定调度建议是否可信
func dispatchDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainDispatch,
		IDKey:            "work_order_id",
		EntityNoun:       "work_order",
		EntityType:       "work_order",
		Table:            "work_orders",
		DefaultThreshold: 0.30,
		Load:             loadByID[models.WorkOrder](),
		Signals: []Signal{
			presence("title", 100, func(w *models.WorkOrder) bool { return hasText(w.Title) }),
			presence("description", 150, func(w *models.WorkOrder) bool { return hasText(w.Description) }),
			presence("status", 50, func(w *models.WorkOrder) bool { return hasText(w.Status) }),
			presence("priority", 50, func(w *models.WorkOrder) bool { return hasText(w.Priority) }),
			presence("technician", 200, func(w *models.WorkOrder) bool { return w.TechnicianID != nil }),
			related("schedule", 200, 0, &models.WorkOrderSchedule{}, "work_order_id = ?"),
			presence("site_address", 150, func(w *models.WorkOrder) bool { return hasText(w.SiteAddress) }),
			presence("estimated_duration", 100, func(w *models.WorkOrder) bool { return w.EstimatedDuration > 0 }),
		},
	}
}
