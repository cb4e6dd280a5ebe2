package context_quality

import "fieldops-insight-service/service/models"

// vendorsDefinition 供应商，停用供应商视为不存在
func vendorsDefinition() *DomainDefinition {
	return &DomainDefinition{
		Domain:           models.DomainVendors,
		IDKey:            "vendor_id",
		EntityNoun:       "vendor",
		EntityType:       "vendor",
		Table:            "vendors",
		DefaultThreshold: 0.25,
		Load:             loadByID[models.Vendor]("is_active = ?", true),
		Signals: []Signal{
			presence("name", 100, func(v *models.Vendor) bool { return hasText(v.Name) }),
			presence("contact_email", 100, func(v *models.Vendor) bool { return hasText(v.ContactEmail) }),
			presence("status", 50, func(v *models.Vendor) bool { return hasText(v.Status) }),
			presence("service_area", 150, func(v *models.Vendor) bool { return hasText(v.ServiceArea) }),
			related("quotes", 300, 3, &models.VendorQuote{}, "vendor_id = ?"),
			related("work_orders", 300, 3, &models.WorkOrder{}, "vendor_id = ?"),
		},
	}
}
