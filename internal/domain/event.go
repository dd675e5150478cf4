package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Priority controls retry urgency and is carried end to end on the wire.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Event namespaces. Every event type is "{namespace}:{name}".
var eventNamespaces = map[string]struct{}{
	"order":        {},
	"kitchen":      {},
	"delivery":     {},
	"inventory":    {},
	"notification": {},
	"system":       {},
}

// KnownEventType reports whether t has the form "{namespace}:{name}" with a
// recognised namespace and a non-empty name.
func KnownEventType(t string) bool {
	ns, name, ok := strings.Cut(t, ":")
	if !ok || name == "" {
		return false
	}
	_, known := eventNamespaces[ns]
	return known
}

// Event is the unit of transport through the gateway. TenantID is immutable
// after creation and must match every recipient connection's tenant.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	TenantID   string            `json:"tenant_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Source     ApplicationType   `json:"source"`
	Targets    []ApplicationType `json:"targets,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
	Priority   Priority          `json:"priority"`
	RetryCount int               `json:"retry_count"`
	Encrypted  bool              `json:"encrypted"`
}

// NewEvent creates an event with a generated id and timestamp. An empty
// priority defaults to medium.
func NewEvent(eventType, tenantID string, source ApplicationType, payload json.RawMessage, priority Priority) *Event {
	if priority == "" {
		priority = PriorityMedium
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Payload:   payload,
		Priority:  priority,
	}
}

// Validate performs the structural checks required for routing. It does not
// inspect the payload beyond presence.
func (e *Event) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.Type, validation.Required, validation.By(checkEventType)),
		validation.Field(&e.TenantID, validation.Required, validation.By(checkTenantID)),
		validation.Field(&e.Source, validation.Required, validation.By(checkSource)),
		validation.Field(&e.Payload, validation.Required),
		validation.Field(&e.Priority, validation.By(checkPriority)),
	)
}

func checkEventType(value interface{}) error {
	t, _ := value.(string)
	if !KnownEventType(t) {
		return fmt.Errorf("unknown event type %q", t)
	}
	return nil
}

func checkTenantID(value interface{}) error {
	id, _ := value.(string)
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("malformed tenant id %q", id)
		}
	}
	return nil
}

func checkSource(value interface{}) error {
	app, _ := value.(ApplicationType)
	if !app.Valid() {
		return fmt.Errorf("unknown source application %q", app)
	}
	return nil
}

func checkPriority(value interface{}) error {
	p, _ := value.(Priority)
	if p != "" && !p.Valid() {
		return fmt.Errorf("unknown priority %q", p)
	}
	return nil
}
