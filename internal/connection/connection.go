package connection

import (
	"sync"
	"time"

	"github.com/dinehub/realtime-gateway/internal/domain"
)

// Sender is the transport write side of a connection. The websocket Client
// implements it; tests substitute fakes.
type Sender interface {
	Send(event *domain.Event) error
	Close()
}

// Metadata carries optional client-supplied connection attributes.
type Metadata struct {
	UserAgent     string   `json:"user_agent,omitempty"`
	ClientVersion string   `json:"client_version,omitempty"`
	Features      []string `json:"features,omitempty"`
}

// Connection is one persistent transport session. Identity fields are
// immutable after construction; liveness state is mutated only through the
// Manager.
type Connection struct {
	ID          string
	UserID      string
	TenantID    string
	Application domain.ApplicationType
	ConnectedAt time.Time
	Metadata    Metadata

	sender Sender

	mu            sync.RWMutex
	lastHeartbeat time.Time
	active        bool
}

// New creates an active connection record bound to the given transport.
func New(id, userID, tenantID string, app domain.ApplicationType, sender Sender, md Metadata) *Connection {
	now := time.Now()
	return &Connection{
		ID:            id,
		UserID:        userID,
		TenantID:      tenantID,
		Application:   app,
		ConnectedAt:   now,
		Metadata:      md,
		sender:        sender,
		lastHeartbeat: now,
		active:        true,
	}
}

// Send delivers an event over the connection's transport. Inactive
// connections reject delivery so failures reach the retry queue.
func (c *Connection) Send(event *domain.Event) error {
	if !c.IsActive() {
		return domain.ErrConnectionInactive
	}
	return c.sender.Send(event)
}

// IsActive reports liveness as seen by the heartbeat tracker.
func (c *Connection) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// LastHeartbeat returns the time of the most recent heartbeat.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

func (c *Connection) markInactive() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

func (c *Connection) closeTransport() {
	if c.sender != nil {
		c.sender.Close()
	}
}
