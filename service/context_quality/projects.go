package context_quality

import "fieldops-insight-service/service/models"

func projectsDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainProjects,
		IDKey:            "project_id",
		EntityNoun:       "project",
		EntityType:       "project",
		Table:            "projects",
		DefaultThreshold: 0.30,
		Load:             loadByID[models.Project](),
		Signals: []Signal{
			presence("name", 100, func(p *models.Project) bool { return hasText(p.Name) }),
			presence("description", 150, func(p *models.Project) bool { return hasText(p.Description) }),
			presence("status", 50, func(p *models.Project) bool { return hasText(p.Status) }),
			presence("owner", 100, func(p *models.Project) bool { return p.OwnerID != nil }),
			presence("due_date", 100, func(p *models.Project) bool { return p.DueDate != nil && !p.DueDate.IsZero() }),
			related("tasks", 300, 5, &models.ProjectTask{}, "project_id = ?"),
			related("completed_tasks", 200, 2, &models.ProjectTask{}, "project_id = ? AND status = ?", "done"),
		},
	}
}
