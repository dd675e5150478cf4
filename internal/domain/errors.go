package domain

import "errors"

var (
	// ErrAuthentication marks a bad, expired or malformed credential token.
	ErrAuthentication = errors.New("authentication failed")

	// ErrDuplicateConnection marks a register call for an id that is already
	// registered. The transport generates ids, so this signals a bug.
	ErrDuplicateConnection = errors.New("connection id already registered")

	// ErrConnectionNotFound marks a lookup for an unknown connection id.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectionInactive marks a delivery attempt against a connection
	// that missed its heartbeats or whose transport is gone.
	ErrConnectionInactive = errors.New("connection inactive")

	// ErrCrossTenantJoin marks a join attempt into a room owned by another
	// tenant.
	ErrCrossTenantJoin = errors.New("room belongs to a different tenant")

	// ErrCrossTenantDelivery marks a resolved target whose tenant does not
	// match the event tenant. Delivery is dropped, never retried.
	ErrCrossTenantDelivery = errors.New("cross-tenant delivery blocked")

	// ErrNoRoutingRule marks an event type with no configured routing rule.
	ErrNoRoutingRule = errors.New("no routing rule for event")

	// ErrSendBufferFull marks a slow consumer whose send buffer is saturated.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrQueueStopped marks an enqueue against a stopped delivery queue.
	ErrQueueStopped = errors.New("delivery queue stopped")
)
