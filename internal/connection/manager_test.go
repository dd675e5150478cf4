package connection

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinehub/realtime-gateway/internal/domain"
)

type fakeSender struct {
	mu     sync.Mutex
	events []*domain.Event
	closed atomic.Int32
}

func (f *fakeSender) Send(event *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSender) Close() {
	f.closed.Add(1)
}

func newConn(id, tenantID string, app domain.ApplicationType) (*Connection, *fakeSender) {
	sender := &fakeSender{}
	return New(id, "user-"+id, tenantID, app, sender, Metadata{}), sender
}

func TestManager_RegisterAndIndexes(t *testing.T) {
	m := NewManager(HeartbeatConfig{})

	c1, _ := newConn("c1", "tenant-a", domain.AppCustomer)
	c2, _ := newConn("c2", "tenant-a", domain.AppKitchen)
	c3, _ := newConn("c3", "tenant-b", domain.AppKitchen)

	require.NoError(t, m.Register(c1))
	require.NoError(t, m.Register(c2))
	require.NoError(t, m.Register(c3))

	assert.Equal(t, 3, m.Count(""))
	assert.Equal(t, 2, m.Count("tenant-a"))
	assert.Equal(t, 1, m.Count("tenant-b"))

	got, ok := m.Get("c2")
	require.True(t, ok)
	assert.Equal(t, c2, got)

	assert.Len(t, m.ByTenant("tenant-a"), 2)
	assert.Len(t, m.ByApplication(domain.AppKitchen, "tenant-a"), 1)
	assert.Len(t, m.ByApplication(domain.AppKitchen, "tenant-b"), 1)
	assert.Empty(t, m.ByApplication(domain.AppDelivery, "tenant-a"))

	assert.ElementsMatch(t, []string{"tenant-a", "tenant-b"}, m.Tenants())
	assert.Equal(t, map[domain.ApplicationType]int{
		domain.AppCustomer: 1,
		domain.AppKitchen:  1,
	}, m.CountByApplication("tenant-a"))
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m := NewManager(HeartbeatConfig{})

	c1, _ := newConn("c1", "tenant-a", domain.AppCustomer)
	dup, _ := newConn("c1", "tenant-a", domain.AppCustomer)

	require.NoError(t, m.Register(c1))
	assert.ErrorIs(t, m.Register(dup), domain.ErrDuplicateConnection)
	assert.Equal(t, 1, m.Count(""))
}

func TestManager_RemoveIsIdempotent(t *testing.T) {
	m := NewManager(HeartbeatConfig{})

	c1, _ := newConn("c1", "tenant-a", domain.AppCustomer)
	require.NoError(t, m.Register(c1))

	removed := m.Remove("c1")
	require.Equal(t, c1, removed)
	assert.False(t, c1.IsActive())
	assert.Equal(t, 0, m.Count(""))
	assert.Empty(t, m.Tenants(), "empty tenant buckets are dropped")

	assert.Nil(t, m.Remove("c1"))
	assert.Nil(t, m.Remove("never-registered"))
}

func TestManager_ReconnectReusesID(t *testing.T) {
	m := NewManager(HeartbeatConfig{})

	c1, _ := newConn("c1", "tenant-a", domain.AppCustomer)
	require.NoError(t, m.Register(c1))
	require.NotNil(t, m.Remove("c1"))

	// A fresh session may register under the same id once the old one is gone.
	c1b, _ := newConn("c1", "tenant-a", domain.AppCustomer)
	require.NoError(t, m.Register(c1b))
	assert.True(t, m.IsActive("c1"))
}

func TestManager_InactiveConnectionRejectsSend(t *testing.T) {
	m := NewManager(HeartbeatConfig{})

	c1, sender := newConn("c1", "tenant-a", domain.AppCustomer)
	require.NoError(t, m.Register(c1))
	m.Remove("c1")

	event := domain.NewEvent("order:created", "tenant-a", domain.AppCustomer, []byte(`{}`), domain.PriorityMedium)
	assert.ErrorIs(t, c1.Send(event), domain.ErrConnectionInactive)
	assert.Empty(t, sender.events)
}

func TestManager_HeartbeatEviction(t *testing.T) {
	m := NewManager(HeartbeatConfig{Interval: 10 * time.Millisecond, MaxMissed: 1})

	var evictions atomic.Int32
	m.OnEvict(func(conn *Connection) {
		evictions.Add(1)
	})

	c1, sender := newConn("c1", "tenant-a", domain.AppCustomer)
	require.NoError(t, m.Register(c1))

	// Deadline is interval × (maxMissed+1) = 20ms of silence.
	require.Eventually(t, func() bool {
		return m.Count("") == 0
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return evictions.Load() == 1
	}, time.Second, 5*time.Millisecond)

	assert.False(t, c1.IsActive())
	assert.Equal(t, int32(1), sender.closed.Load(), "transport closed exactly once on eviction")
}

func TestManager_HeartbeatKeepsConnectionAlive(t *testing.T) {
	m := NewManager(HeartbeatConfig{Interval: 20 * time.Millisecond, MaxMissed: 1})

	c1, _ := newConn("c1", "tenant-a", domain.AppCustomer)
	require.NoError(t, m.Register(c1))
	before := c1.LastHeartbeat()

	// Heartbeat well inside every deadline window; the connection survives
	// several multiples of the eviction deadline.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Heartbeat("c1")
			}
		}
	}()

	time.Sleep(150 * time.Millisecond)
	close(stop)

	assert.True(t, m.IsActive("c1"))
	assert.True(t, c1.LastHeartbeat().After(before))
}

func TestManager_HeartbeatUnknownConnection(t *testing.T) {
	m := NewManager(HeartbeatConfig{Interval: time.Minute, MaxMissed: 2})
	assert.NotPanics(t, func() { m.Heartbeat("ghost") })
}

func TestManager_StopHeartbeatDisarmsTimer(t *testing.T) {
	m := NewManager(HeartbeatConfig{Interval: 10 * time.Millisecond, MaxMissed: 0})

	c1, _ := newConn("c1", "tenant-a", domain.AppCustomer)
	require.NoError(t, m.Register(c1))
	m.StopHeartbeat("c1")

	time.Sleep(50 * time.Millisecond)
	assert.True(t, m.IsActive("c1"), "connection with disarmed timer must not be evicted")
}
