package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomID_Name(t *testing.T) {
	tests := []struct {
		name     string
		roomID   RoomID
		expected string
	}{
		{"tenant room", TenantRoom("tenant-a"), "tenant:tenant-a"},
		{"application room", ApplicationRoom("tenant-a", AppKitchen), "app:tenant-a:kitchen_app"},
		{"order room", OrderRoom("tenant-a", "order-42"), "order:tenant-a:order-42"},
		{"station room", StationRoom("tenant-a", "grill"), "station:tenant-a:grill"},
		{"route room", RouteRoom("tenant-a", "route-7"), "route:tenant-a:route-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.roomID.Name())
		})
	}
}

func TestRoomID_Valid(t *testing.T) {
	tests := []struct {
		name   string
		roomID RoomID
		valid  bool
	}{
		{"tenant room", TenantRoom("tenant-a"), true},
		{"tenant room without tenant", TenantRoom(""), false},
		{"tenant room with stray scope", RoomID{Kind: RoomTenant, TenantID: "tenant-a", Scope: "x"}, false},
		{"application room", ApplicationRoom("tenant-a", AppDelivery), true},
		{"application room with bogus app", RoomID{Kind: RoomApplication, TenantID: "tenant-a", Scope: "mainframe"}, false},
		{"order room", OrderRoom("tenant-a", "order-1"), true},
		{"order room without scope", RoomID{Kind: RoomOrder, TenantID: "tenant-a"}, false},
		{"unknown kind", RoomID{Kind: "lobby", TenantID: "tenant-a", Scope: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.roomID.Valid())
		})
	}
}

func TestParseRoomName_RoundTrip(t *testing.T) {
	ids := []RoomID{
		TenantRoom("tenant-a"),
		ApplicationRoom("tenant-a", AppCustomer),
		OrderRoom("tenant-b", "order-42"),
		StationRoom("tenant-b", "fryer"),
		RouteRoom("tenant-c", "route-1"),
	}

	for _, id := range ids {
		t.Run(id.Name(), func(t *testing.T) {
			parsed, err := ParseRoomName(id.Name())
			require.NoError(t, err)
			assert.Equal(t, id, parsed)
		})
	}
}

func TestParseRoomName_Malformed(t *testing.T) {
	names := []string{
		"",
		"tenant",
		"tenant:",
		"tenant:a:extra",
		"order:tenant-a",
		"order:tenant-a:",
		"lobby:tenant-a:x",
		"app:tenant-a:mainframe",
		"just-a-string",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRoomName(name)
			assert.Error(t, err, "name %q must not parse", name)
		})
	}
}
