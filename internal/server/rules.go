package server

import (
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/internal/router"
)

// DefaultRules is the routing table installed at startup. Configuration
// refresh replaces entries wholesale through Router.AddRule.
func DefaultRules() []router.Rule {
	all := domain.ApplicationTypes

	return []router.Rule{
		{EventType: "order:created", Source: domain.AppCustomer,
			Targets: []domain.ApplicationType{domain.AppKitchen, domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "order:status_changed", Source: router.SourceAny,
			Targets: []domain.ApplicationType{domain.AppCustomer, domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "order:cancelled", Source: router.SourceAny,
			Targets: []domain.ApplicationType{domain.AppCustomer, domain.AppKitchen, domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "kitchen:ticket_ready", Source: domain.AppKitchen,
			Targets: []domain.ApplicationType{domain.AppDelivery, domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "kitchen:ticket_updated", Source: domain.AppKitchen,
			Targets: []domain.ApplicationType{domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "delivery:assigned", Source: domain.AppDashboard,
			Targets: []domain.ApplicationType{domain.AppDelivery, domain.AppCustomer},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "delivery:location_updated", Source: domain.AppDelivery,
			Targets: []domain.ApplicationType{domain.AppCustomer, domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "delivery:completed", Source: domain.AppDelivery,
			Targets: []domain.ApplicationType{domain.AppCustomer, domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "inventory:low_stock", Source: domain.AppKitchen,
			Targets: []domain.ApplicationType{domain.AppDashboard},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "inventory:item_unavailable", Source: domain.AppKitchen,
			Targets: []domain.ApplicationType{domain.AppDashboard, domain.AppCustomer},
			RequireAuth: true, TenantIsolated: true},
		{EventType: "notification:announcement", Source: domain.AppDashboard,
			Targets: all, RequireAuth: true, TenantIsolated: true},
		{EventType: "system:maintenance", Source: router.SourceAny,
			Targets: all, RequireAuth: true, TenantIsolated: true},
	}
}
