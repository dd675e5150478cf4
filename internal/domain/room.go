package domain

import (
	"fmt"
	"strings"
)

// RoomKind enumerates the broadcast group shapes the gateway supports.
type RoomKind string

const (
	RoomTenant      RoomKind = "tenant"
	RoomApplication RoomKind = "app"
	RoomOrder       RoomKind = "order"
	RoomStation     RoomKind = "station"
	RoomRoute       RoomKind = "route"
)

// RoomID is the tagged identity of a room. Using a structured id instead of
// free-form strings keeps room names canonical and unspoofable; the tenant is
// always part of the identity.
type RoomID struct {
	Kind     RoomKind
	TenantID string
	Scope    string // application type, order id, station id or route id
}

func TenantRoom(tenantID string) RoomID {
	return RoomID{Kind: RoomTenant, TenantID: tenantID}
}

func ApplicationRoom(tenantID string, app ApplicationType) RoomID {
	return RoomID{Kind: RoomApplication, TenantID: tenantID, Scope: string(app)}
}

func OrderRoom(tenantID, orderID string) RoomID {
	return RoomID{Kind: RoomOrder, TenantID: tenantID, Scope: orderID}
}

func StationRoom(tenantID, stationID string) RoomID {
	return RoomID{Kind: RoomStation, TenantID: tenantID, Scope: stationID}
}

func RouteRoom(tenantID, routeID string) RoomID {
	return RoomID{Kind: RoomRoute, TenantID: tenantID, Scope: routeID}
}

// Name derives the canonical room name. Callers may compute it without any
// registry lookup.
func (r RoomID) Name() string {
	if r.Kind == RoomTenant {
		return fmt.Sprintf("tenant:%s", r.TenantID)
	}
	return fmt.Sprintf("%s:%s:%s", r.Kind, r.TenantID, r.Scope)
}

// Valid reports whether the id is structurally complete.
func (r RoomID) Valid() bool {
	if r.TenantID == "" {
		return false
	}
	switch r.Kind {
	case RoomTenant:
		return r.Scope == ""
	case RoomApplication:
		return ApplicationType(r.Scope).Valid()
	case RoomOrder, RoomStation, RoomRoute:
		return r.Scope != ""
	}
	return false
}

// ParseRoomName converts a canonical room name back to its RoomID.
func ParseRoomName(name string) (RoomID, error) {
	parts := strings.Split(name, ":")
	switch {
	case len(parts) == 2 && RoomKind(parts[0]) == RoomTenant:
		id := TenantRoom(parts[1])
		if !id.Valid() {
			return RoomID{}, fmt.Errorf("malformed room name %q", name)
		}
		return id, nil
	case len(parts) == 3:
		id := RoomID{Kind: RoomKind(parts[0]), TenantID: parts[1], Scope: parts[2]}
		if id.Kind == RoomTenant || !id.Valid() {
			return RoomID{}, fmt.Errorf("malformed room name %q", name)
		}
		return id, nil
	}
	return RoomID{}, fmt.Errorf("malformed room name %q", name)
}
