package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dinehub/realtime-gateway/internal/connection"
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// Metadata carries optional room attributes.
type Metadata struct {
	Description string
	MaxMembers  int // 0 means unbounded
	Private     bool
}

// Room is a named broadcast group owned by exactly one tenant. Every member
// connection's tenant equals the room's tenant.
type Room struct {
	ID        domain.RoomID
	CreatedAt time.Time
	Metadata  Metadata

	members    map[string]struct{}
	emptySince time.Time
}

// ConnectionResolver supplies the tenant of a connection for the isolation
// check on join.
type ConnectionResolver interface {
	Get(connID string) (*connection.Connection, bool)
}

// Registry is the single writer of room membership. Rooms are created lazily
// on first join and reclaimed by a periodic sweep once empty and idle.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	conns ConnectionResolver

	idleTTL       time.Duration
	sweepInterval time.Duration
	cancel        context.CancelFunc
}

func NewRegistry(conns ConnectionResolver, idleTTL, sweepInterval time.Duration) *Registry {
	return &Registry{
		rooms:         make(map[string]*Room),
		conns:         conns,
		idleTTL:       idleTTL,
		sweepInterval: sweepInterval,
	}
}

// Join adds the connection to the room, creating the room if absent. The
// join is rejected when the connection's tenant differs from the room's.
func (r *Registry) Join(connID string, roomID domain.RoomID) error {
	if !roomID.Valid() {
		return fmt.Errorf("invalid room id %+v", roomID)
	}

	conn, ok := r.conns.Get(connID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, connID)
	}
	if conn.TenantID != roomID.TenantID {
		return fmt.Errorf("%w: connection tenant %s, room %s", domain.ErrCrossTenantJoin, conn.TenantID, roomID.Name())
	}

	name := roomID.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = &Room{
			ID:        roomID,
			CreatedAt: time.Now(),
			members:   make(map[string]struct{}),
		}
		r.rooms[name] = rm
	}

	if rm.Metadata.MaxMembers > 0 && len(rm.members) >= rm.Metadata.MaxMembers {
		return fmt.Errorf("room %s is full", name)
	}

	rm.members[connID] = struct{}{}
	rm.emptySince = time.Time{}

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connID).Str(log.FieldRoom, name).Msg("joined room")
	return nil
}

// Leave removes the membership. An emptied room is only marked idle; the
// sweep reclaims it later, so rapid join/leave does not churn the map.
func (r *Registry) Leave(connID string, roomID domain.RoomID) {
	name := roomID.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return
	}
	delete(rm.members, connID)
	if len(rm.members) == 0 {
		rm.emptySince = time.Now()
	}

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connID).Str(log.FieldRoom, name).Msg("left room")
}

// RemoveConnection purges the connection from every room it belongs to.
// Called on disconnect and eviction.
func (r *Registry) RemoveConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rm := range r.rooms {
		if _, ok := rm.members[connID]; !ok {
			continue
		}
		delete(rm.members, connID)
		if len(rm.members) == 0 {
			rm.emptySince = time.Now()
		}
	}
}

// Members returns a snapshot of the room's member connection ids.
func (r *Registry) Members(roomID domain.RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID.Name()]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rm.members))
	for id := range rm.members {
		out = append(out, id)
	}
	return out
}

// MemberCount returns the room's current size.
func (r *Registry) MemberCount(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID.Name()]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// RoomCount returns the number of rooms currently tracked, including empty
// rooms awaiting the sweep.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Start launches the periodic cleanup sweep.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(time.Now())
			}
		}
	}()
}

// Stop halts the cleanup sweep.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Sweep reclaims rooms that have been empty longer than the idle TTL. It
// runs off the delivery hot path.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name, rm := range r.rooms {
		if len(rm.members) == 0 && !rm.emptySince.IsZero() && now.Sub(rm.emptySince) > r.idleTTL {
			delete(r.rooms, name)
			removed++
		}
	}

	if removed > 0 {
		l := log.L()
		l.Debug().Int("removed", removed).Msg("swept idle rooms")
	}
	return removed
}
