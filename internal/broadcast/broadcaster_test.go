package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinehub/realtime-gateway/internal/connection"
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/internal/room"
)

type recordingSender struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (s *recordingSender) Send(event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSender) Close() {}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type recordingRetrier struct {
	mu      sync.Mutex
	entries []string // connection ids handed to the queue
}

func (r *recordingRetrier) Enqueue(event *domain.Event, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, connID)
	return nil
}

func (r *recordingRetrier) queued() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

type fixture struct {
	conns   *connection.Manager
	rooms   *room.Registry
	queue   *recordingRetrier
	caster  *Broadcaster
	senders map[string]*recordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conns := connection.NewManager(connection.HeartbeatConfig{})
	f := &fixture{
		conns:   conns,
		rooms:   room.NewRegistry(conns, 5*time.Minute, time.Minute),
		queue:   &recordingRetrier{},
		senders: make(map[string]*recordingSender),
	}
	f.caster = New(f.conns, f.rooms, f.queue, 4)
	return f
}

func (f *fixture) register(t *testing.T, id, tenantID string, app domain.ApplicationType) *recordingSender {
	t.Helper()
	sender := &recordingSender{}
	f.senders[id] = sender
	conn := connection.New(id, "user-"+id, tenantID, app, sender, connection.Metadata{})
	require.NoError(t, f.conns.Register(conn))
	return sender
}

func newEvent(tenantID string) *domain.Event {
	return domain.NewEvent("order:created", tenantID, domain.AppCustomer, []byte(`{"order_id":"o-1"}`), domain.PriorityMedium)
}

func TestBroadcaster_ToConnection(t *testing.T) {
	f := newFixture(t)
	sender := f.register(t, "c1", "tenant-a", domain.AppKitchen)

	require.NoError(t, f.caster.ToConnection("c1", newEvent("tenant-a")))
	assert.Equal(t, 1, sender.count())
	assert.Empty(t, f.queue.queued())
}

func TestBroadcaster_FailedTargetGoesToQueue(t *testing.T) {
	f := newFixture(t)
	healthy := f.register(t, "c1", "tenant-a", domain.AppKitchen)
	broken := f.register(t, "c2", "tenant-a", domain.AppKitchen)
	broken.err = errors.New("send buffer full")

	require.NoError(t, f.caster.ToTargets([]string{"c1", "c2"}, newEvent("tenant-a")))

	// The healthy sibling is unaffected; only the failed target is queued.
	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, []string{"c2"}, f.queue.queued())
}

func TestBroadcaster_UnknownTargetGoesToQueue(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.caster.ToConnection("ghost", newEvent("tenant-a")))
	assert.Equal(t, []string{"ghost"}, f.queue.queued())
}

func TestBroadcaster_CrossTenantTargetDroppedNotQueued(t *testing.T) {
	f := newFixture(t)
	foreign := f.register(t, "b1", "tenant-b", domain.AppKitchen)

	// A resolved target in another tenant is silently dropped; queueing it
	// would just retry the violation.
	require.NoError(t, f.caster.ToTargets([]string{"b1"}, newEvent("tenant-a")))
	assert.Equal(t, 0, foreign.count())
	assert.Empty(t, f.queue.queued())
}

func TestBroadcaster_ToRoom(t *testing.T) {
	f := newFixture(t)
	s1 := f.register(t, "c1", "tenant-a", domain.AppKitchen)
	s2 := f.register(t, "c2", "tenant-a", domain.AppDashboard)
	outsider := f.register(t, "c3", "tenant-a", domain.AppCustomer)

	roomID := domain.OrderRoom("tenant-a", "order-5")
	require.NoError(t, f.rooms.Join("c1", roomID))
	require.NoError(t, f.rooms.Join("c2", roomID))

	require.NoError(t, f.caster.ToRoom(roomID, newEvent("tenant-a")))
	assert.Equal(t, 1, s1.count())
	assert.Equal(t, 1, s2.count())
	assert.Equal(t, 0, outsider.count())
}

func TestBroadcaster_ToRoomCrossTenantRejected(t *testing.T) {
	f := newFixture(t)
	sender := f.register(t, "b1", "tenant-b", domain.AppKitchen)
	roomID := domain.TenantRoom("tenant-b")
	require.NoError(t, f.rooms.Join("b1", roomID))

	err := f.caster.ToRoom(roomID, newEvent("tenant-a"))
	assert.ErrorIs(t, err, domain.ErrCrossTenantDelivery)
	assert.Equal(t, 0, sender.count())
	assert.Empty(t, f.queue.queued())
}

func TestBroadcaster_ToTenant(t *testing.T) {
	f := newFixture(t)
	s1 := f.register(t, "c1", "tenant-a", domain.AppKitchen)
	s2 := f.register(t, "c2", "tenant-a", domain.AppCustomer)
	foreign := f.register(t, "b1", "tenant-b", domain.AppKitchen)

	require.NoError(t, f.caster.ToTenant("tenant-a", newEvent("tenant-a")))
	assert.Equal(t, 1, s1.count())
	assert.Equal(t, 1, s2.count())
	assert.Equal(t, 0, foreign.count())

	err := f.caster.ToTenant("tenant-b", newEvent("tenant-a"))
	assert.ErrorIs(t, err, domain.ErrCrossTenantDelivery)
	assert.Equal(t, 0, foreign.count())
}

func TestBroadcaster_ToApplicationsDeduplicates(t *testing.T) {
	f := newFixture(t)
	sender := f.register(t, "c1", "tenant-a", domain.AppKitchen)

	apps := []domain.ApplicationType{domain.AppKitchen, domain.AppKitchen}
	require.NoError(t, f.caster.ToApplications(apps, "tenant-a", newEvent("tenant-a")))
	assert.Equal(t, 1, sender.count())
}

func TestBroadcaster_Deliver(t *testing.T) {
	f := newFixture(t)
	sender := f.register(t, "c1", "tenant-a", domain.AppKitchen)
	f.register(t, "b1", "tenant-b", domain.AppKitchen)

	require.NoError(t, f.caster.Deliver("c1", newEvent("tenant-a")))
	assert.Equal(t, 1, sender.count())

	assert.ErrorIs(t, f.caster.Deliver("ghost", newEvent("tenant-a")), domain.ErrConnectionNotFound)
	assert.ErrorIs(t, f.caster.Deliver("b1", newEvent("tenant-a")), domain.ErrCrossTenantDelivery)
}
