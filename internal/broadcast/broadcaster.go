package broadcast

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dinehub/realtime-gateway/internal/audit"
	"github.com/dinehub/realtime-gateway/internal/connection"
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/internal/room"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// Retrier accepts failed deliveries for background redelivery.
type Retrier interface {
	Enqueue(event *domain.Event, connID string) error
}

// Broadcaster resolves target connection sets and delivers events to them.
// A broadcast succeeds once every resolved target is either delivered or
// handed to the retry queue; one failing target never aborts its siblings.
type Broadcaster struct {
	conns *connection.Manager
	rooms *room.Registry
	queue Retrier

	maxConcurrent int
}

func New(conns *connection.Manager, rooms *room.Registry, queue Retrier, maxConcurrent int) *Broadcaster {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &Broadcaster{
		conns:         conns,
		rooms:         rooms,
		queue:         queue,
		maxConcurrent: maxConcurrent,
	}
}

// ToConnection delivers an event to a single connection, falling back to the
// retry queue on transport failure.
func (b *Broadcaster) ToConnection(connID string, event *domain.Event) error {
	return b.dispatch([]string{connID}, event)
}

// ToTargets delivers to an already-resolved connection id set, typically the
// router's output.
func (b *Broadcaster) ToTargets(connIDs []string, event *domain.Event) error {
	return b.dispatch(connIDs, event)
}

// ToRoom delivers to the room's current members. The member set is
// snapshotted once, so a concurrent join does not receive a partial stream.
func (b *Broadcaster) ToRoom(roomID domain.RoomID, event *domain.Event) error {
	if roomID.TenantID != event.TenantID {
		audit.LogWithDetail(context.Background(), audit.ActionCrossTenantBlocked, event.TenantID,
			roomID.Name(), "broadcast to foreign tenant room blocked")
		return fmt.Errorf("%w: event tenant %s, room %s", domain.ErrCrossTenantDelivery, event.TenantID, roomID.Name())
	}
	return b.dispatch(b.rooms.Members(roomID), event)
}

// ToTenant delivers to every connection of the tenant.
func (b *Broadcaster) ToTenant(tenantID string, event *domain.Event) error {
	if tenantID != event.TenantID {
		audit.LogWithDetail(context.Background(), audit.ActionCrossTenantBlocked, event.TenantID,
			tenantID, "broadcast to foreign tenant blocked")
		return fmt.Errorf("%w: event tenant %s, target tenant %s", domain.ErrCrossTenantDelivery, event.TenantID, tenantID)
	}
	return b.dispatch(connIDs(b.conns.ByTenant(tenantID)), event)
}

// ToApplication delivers to the tenant's connections of one application type.
func (b *Broadcaster) ToApplication(app domain.ApplicationType, tenantID string, event *domain.Event) error {
	return b.ToApplications([]domain.ApplicationType{app}, tenantID, event)
}

// ToApplications delivers to the tenant's connections across several
// application types.
func (b *Broadcaster) ToApplications(apps []domain.ApplicationType, tenantID string, event *domain.Event) error {
	if tenantID != event.TenantID {
		audit.LogWithDetail(context.Background(), audit.ActionCrossTenantBlocked, event.TenantID,
			tenantID, "broadcast to foreign tenant blocked")
		return fmt.Errorf("%w: event tenant %s, target tenant %s", domain.ErrCrossTenantDelivery, event.TenantID, tenantID)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, app := range apps {
		for _, conn := range b.conns.ByApplication(app, tenantID) {
			if _, dup := seen[conn.ID]; dup {
				continue
			}
			seen[conn.ID] = struct{}{}
			ids = append(ids, conn.ID)
		}
	}
	return b.dispatch(ids, event)
}

// Deliver attempts one direct transport delivery. It is the queue's
// DeliverFunc: failures here surface to the retry loop, not back to the
// original publisher.
func (b *Broadcaster) Deliver(connID string, event *domain.Event) error {
	conn, ok := b.conns.Get(connID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, connID)
	}
	if conn.TenantID != event.TenantID {
		audit.LogWithDetail(context.Background(), audit.ActionCrossTenantBlocked, event.TenantID,
			connID, "resolved target in foreign tenant dropped")
		return fmt.Errorf("%w: connection %s", domain.ErrCrossTenantDelivery, connID)
	}
	return conn.Send(event)
}

// dispatch fans the event out to the target set through a bounded worker
// pool, so one slow connection cannot delay delivery to the others. Failed
// targets are enqueued for retry individually.
func (b *Broadcaster) dispatch(connIDs []string, event *domain.Event) error {
	if len(connIDs) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(b.maxConcurrent)

	for _, connID := range connIDs {
		connID := connID
		g.Go(func() error {
			err := b.Deliver(connID, event)
			if err == nil {
				return nil
			}
			// A cross-tenant target is dropped, never retried.
			if errors.Is(err, domain.ErrCrossTenantDelivery) {
				return nil
			}

			l := log.L()
			l.Debug().
				Str(log.FieldEventID, event.ID).
				Str(log.FieldConnectionID, connID).
				Err(err).
				Msg("direct delivery failed, queueing retry")
			return b.queue.Enqueue(event, connID)
		})
	}

	return g.Wait()
}

func connIDs(conns []*connection.Connection) []string {
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	return ids
}
