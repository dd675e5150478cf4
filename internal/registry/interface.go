package registry

import "context"

// InstanceRegistry advertises which gateway instance currently hosts a
// tenant's connections, so peers and dispatchers can locate them in a
// multi-instance deployment.
type InstanceRegistry interface {
	RegisterTenant(ctx context.Context, tenantID string) error
	DeregisterTenant(ctx context.Context, tenantID string) error
	Lookup(ctx context.Context, tenantID string) (string, error)
	StartHeartbeat(ctx context.Context) error
	StopHeartbeat()
	Close() error
}

// Noop is used when no shared registry backend is configured.
type Noop struct{}

func (Noop) RegisterTenant(context.Context, string) error   { return nil }
func (Noop) DeregisterTenant(context.Context, string) error { return nil }
func (Noop) Lookup(context.Context, string) (string, error) { return "", nil }
func (Noop) StartHeartbeat(context.Context) error           { return nil }
func (Noop) StopHeartbeat()                                 {}
func (Noop) Close() error                                   { return nil }
