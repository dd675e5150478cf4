package domain

import "fmt"

// ApplicationType identifies which client application a connection belongs to.
type ApplicationType string

const (
	AppCustomer  ApplicationType = "customer_app"
	AppDashboard ApplicationType = "tenant_dashboard"
	AppKitchen   ApplicationType = "kitchen_app"
	AppDelivery  ApplicationType = "delivery_app"
)

// ApplicationTypes lists every valid application type.
var ApplicationTypes = []ApplicationType{AppCustomer, AppDashboard, AppKitchen, AppDelivery}

func (a ApplicationType) Valid() bool {
	switch a {
	case AppCustomer, AppDashboard, AppKitchen, AppDelivery:
		return true
	}
	return false
}

func (a ApplicationType) String() string { return string(a) }

// ParseApplicationType converts a wire string into an ApplicationType.
func ParseApplicationType(s string) (ApplicationType, error) {
	a := ApplicationType(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown application type %q", s)
	}
	return a, nil
}

// Role is a domain role carried in the credential token.
type Role string

const (
	RoleCustomer     Role = "customer"
	RoleKitchenStaff Role = "kitchen_staff"
	RoleChef         Role = "chef"
	RoleDelivery     Role = "delivery_personnel"
	RoleOwner        Role = "owner"
	RoleManager      Role = "manager"
	RoleAdmin        Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleKitchenStaff, RoleChef, RoleDelivery, RoleOwner, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Applications returns the application types this role may join.
func (r Role) Applications() []ApplicationType {
	switch r {
	case RoleCustomer:
		return []ApplicationType{AppCustomer}
	case RoleKitchenStaff, RoleChef:
		return []ApplicationType{AppKitchen}
	case RoleDelivery:
		return []ApplicationType{AppDelivery}
	case RoleOwner, RoleManager:
		return []ApplicationType{AppDashboard, AppKitchen}
	case RoleAdmin:
		return ApplicationTypes
	}
	return nil
}

// MayJoin reports whether the role grants access to the given application.
func (r Role) MayJoin(app ApplicationType) bool {
	for _, a := range r.Applications() {
		if a == app {
			return true
		}
	}
	return false
}
