package connection

import (
	"fmt"
	"sync"
	"time"

	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// HeartbeatConfig controls liveness tracking. A connection silent for
// Interval × (MaxMissed+1) is marked inactive and force-removed.
type HeartbeatConfig struct {
	Interval  time.Duration
	MaxMissed int
}

func (h HeartbeatConfig) deadline() time.Duration {
	return h.Interval * time.Duration(h.MaxMissed+1)
}

// EvictFunc is invoked after a connection is force-removed for missing
// heartbeats. It runs outside the manager lock.
type EvictFunc func(conn *Connection)

type appKey struct {
	app    domain.ApplicationType
	tenant string
}

// Manager owns the authoritative table of active connections and their
// liveness timers. It is the single writer of connection lifecycle state.
type Manager struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	byTenant map[string]map[string]*Connection
	byApp    map[appKey]map[string]*Connection
	timers   map[string]*time.Timer

	heartbeat HeartbeatConfig
	onEvict   EvictFunc
}

func NewManager(heartbeat HeartbeatConfig) *Manager {
	return &Manager{
		conns:     make(map[string]*Connection),
		byTenant:  make(map[string]map[string]*Connection),
		byApp:     make(map[appKey]map[string]*Connection),
		timers:    make(map[string]*time.Timer),
		heartbeat: heartbeat,
	}
}

// OnEvict registers the eviction callback. Set once during composition,
// before connections are accepted.
func (m *Manager) OnEvict(fn EvictFunc) {
	m.onEvict = fn
}

// Register adds a connection and indexes it by tenant and by
// (application, tenant). A duplicate id is a fatal bug signal, not a
// recoverable condition.
func (m *Manager) Register(conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[conn.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateConnection, conn.ID)
	}

	m.conns[conn.ID] = conn

	if _, ok := m.byTenant[conn.TenantID]; !ok {
		m.byTenant[conn.TenantID] = make(map[string]*Connection)
	}
	m.byTenant[conn.TenantID][conn.ID] = conn

	key := appKey{app: conn.Application, tenant: conn.TenantID}
	if _, ok := m.byApp[key]; !ok {
		m.byApp[key] = make(map[string]*Connection)
	}
	m.byApp[key][conn.ID] = conn

	m.startHeartbeatLocked(conn.ID)

	l := log.L()
	l.Debug().
		Str(log.FieldConnectionID, conn.ID).
		Str(log.FieldTenantID, conn.TenantID).
		Str(log.FieldApplication, conn.Application.String()).
		Msg("connection registered")
	return nil
}

// Remove deletes a connection and all its index entries. Removing an unknown
// id is a no-op.
func (m *Manager) Remove(connID string) *Connection {
	m.mu.Lock()
	conn, ok := m.conns[connID]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	m.stopHeartbeatLocked(connID)
	delete(m.conns, connID)

	if tenantConns, ok := m.byTenant[conn.TenantID]; ok {
		delete(tenantConns, connID)
		if len(tenantConns) == 0 {
			delete(m.byTenant, conn.TenantID)
		}
	}

	key := appKey{app: conn.Application, tenant: conn.TenantID}
	if appConns, ok := m.byApp[key]; ok {
		delete(appConns, connID)
		if len(appConns) == 0 {
			delete(m.byApp, key)
		}
	}
	m.mu.Unlock()

	conn.markInactive()

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connID).Msg("connection removed")
	return conn
}

// Get returns the connection for id, if registered.
func (m *Manager) Get(connID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

// ByTenant returns a snapshot of the tenant's connections.
func (m *Manager) ByTenant(tenantID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.byTenant[tenantID])
}

// ByApplication returns a snapshot of the tenant's connections for one
// application type.
func (m *Manager) ByApplication(app domain.ApplicationType, tenantID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.byApp[appKey{app: app, tenant: tenantID}])
}

// IsActive reports whether the connection exists and is live.
func (m *Manager) IsActive(connID string) bool {
	m.mu.RLock()
	conn, ok := m.conns[connID]
	m.mu.RUnlock()
	return ok && conn.IsActive()
}

// Count returns the number of connections for a tenant, or all connections
// when tenantID is empty.
func (m *Manager) Count(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tenantID == "" {
		return len(m.conns)
	}
	return len(m.byTenant[tenantID])
}

// CountByApplication returns per-application connection counts for a tenant.
func (m *Manager) CountByApplication(tenantID string) map[domain.ApplicationType]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.ApplicationType]int)
	for _, conn := range m.byTenant[tenantID] {
		counts[conn.Application]++
	}
	return counts
}

// Tenants returns the ids of tenants with at least one connection.
func (m *Manager) Tenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tenants := make([]string, 0, len(m.byTenant))
	for t := range m.byTenant {
		tenants = append(tenants, t)
	}
	return tenants
}

// Heartbeat records a received heartbeat: the connection's timestamp is
// refreshed and its eviction timer rearmed. Unknown ids are ignored.
func (m *Manager) Heartbeat(connID string) {
	m.mu.Lock()
	conn, ok := m.conns[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if timer, ok := m.timers[connID]; ok {
		timer.Reset(m.heartbeat.deadline())
	}
	m.mu.Unlock()

	conn.touch()
}

// StartHeartbeat arms the liveness timer for a connection. Register does
// this automatically; the method exists for re-arming after StopHeartbeat.
func (m *Manager) StartHeartbeat(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[connID]; !ok {
		return
	}
	m.startHeartbeatLocked(connID)
}

// StopHeartbeat disarms the liveness timer without removing the connection.
func (m *Manager) StopHeartbeat(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopHeartbeatLocked(connID)
}

func (m *Manager) startHeartbeatLocked(connID string) {
	if m.heartbeat.Interval <= 0 {
		return
	}
	if timer, ok := m.timers[connID]; ok {
		timer.Stop()
	}
	m.timers[connID] = time.AfterFunc(m.heartbeat.deadline(), func() {
		m.evict(connID)
	})
}

func (m *Manager) stopHeartbeatLocked(connID string) {
	if timer, ok := m.timers[connID]; ok {
		timer.Stop()
		delete(m.timers, connID)
	}
}

// evict runs on heartbeat timer expiry. It takes the same table lock as
// Remove, so it cannot race a concurrent register/remove for the same id.
func (m *Manager) evict(connID string) {
	conn := m.Remove(connID)
	if conn == nil {
		return
	}
	conn.closeTransport()

	l := log.L()
	l.Warn().
		Str(log.FieldConnectionID, connID).
		Str(log.FieldTenantID, conn.TenantID).
		Dur("silent_for", time.Since(conn.LastHeartbeat())).
		Msg("connection evicted after missed heartbeats")

	if m.onEvict != nil {
		m.onEvict(conn)
	}
}

func snapshot(set map[string]*Connection) []*Connection {
	if len(set) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}
