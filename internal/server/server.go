package server

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dinehub/realtime-gateway/internal/audit"
	"github.com/dinehub/realtime-gateway/internal/auth"
	"github.com/dinehub/realtime-gateway/internal/broadcast"
	"github.com/dinehub/realtime-gateway/internal/config"
	"github.com/dinehub/realtime-gateway/internal/connection"
	"github.com/dinehub/realtime-gateway/internal/delivery"
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/internal/registry"
	"github.com/dinehub/realtime-gateway/internal/room"
	"github.com/dinehub/realtime-gateway/internal/router"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// Gateway composes the gateway's parts and owns their lifecycles. All state
// is instance-scoped: tests run several isolated gateways side by side.
type Gateway struct {
	cfg *config.Config

	auth      *auth.Authenticator
	conns     *connection.Manager
	rooms     *room.Registry
	router    *router.Router
	queue     *delivery.Queue
	caster    *broadcast.Broadcaster
	instances registry.InstanceRegistry
	limiter   *rateLimiter

	started time.Time

	errMu     sync.Mutex
	lastErr   string
	lastErrAt time.Time
}

// New wires a gateway from configuration. The instance registry may be
// registry.Noop when no shared backend is configured.
func New(cfg *config.Config, instances registry.InstanceRegistry) (*Gateway, error) {
	authenticator, err := auth.NewAuthenticator(cfg.Security.TokenSecret, "realtime-gateway", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to build authenticator: %w", err)
	}

	if instances == nil {
		instances = registry.Noop{}
	}

	g := &Gateway{
		cfg:       cfg,
		auth:      authenticator,
		instances: instances,
		limiter:   newRateLimiter(cfg.Security.RateLimit),
		started:   time.Now(),
	}

	g.conns = connection.NewManager(connection.HeartbeatConfig{
		Interval:  cfg.Heartbeat.Interval,
		MaxMissed: cfg.Heartbeat.MaxMissed,
	})
	g.rooms = room.NewRegistry(g.conns, cfg.Rooms.IdleTTL, cfg.Rooms.SweepInterval)

	policy := delivery.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         cfg.Retry.BaseDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		Jitter:            cfg.Retry.Jitter,
	}
	g.queue = delivery.NewQueue(policy, cfg.Retry.MessageTTL, func(connID string, event *domain.Event) error {
		return g.caster.Deliver(connID, event)
	})
	g.caster = broadcast.New(g.conns, g.rooms, g.queue, 2*runtime.NumCPU())
	g.router = router.New(g.conns)

	for _, rule := range DefaultRules() {
		g.router.AddRule(rule)
	}

	g.conns.OnEvict(func(conn *connection.Connection) {
		g.rooms.RemoveConnection(conn.ID)
		g.releaseTenant(conn.TenantID)
		audit.Log(context.Background(), audit.ActionEvicted, conn.TenantID, "connection evicted")
	})

	return g, nil
}

// Start launches the background loops: retry dispatch, room sweeping and the
// instance registry heartbeat.
func (g *Gateway) Start(ctx context.Context) error {
	g.queue.Start(ctx)
	g.rooms.Start(ctx)
	if err := g.instances.StartHeartbeat(ctx); err != nil {
		return fmt.Errorf("failed to start instance registry heartbeat: %w", err)
	}

	l := log.L()
	l.Info().Msg("gateway started")
	return nil
}

// Stop halts the background loops.
func (g *Gateway) Stop() {
	g.rooms.Stop()
	g.queue.Stop()
	g.instances.StopHeartbeat()
}

// Router exposes the rule table for configuration refresh.
func (g *Gateway) Router() *router.Router { return g.router }

// Connections exposes the connection manager for introspection.
func (g *Gateway) Connections() *connection.Manager { return g.conns }

// Rooms exposes the room registry.
func (g *Gateway) Rooms() *room.Registry { return g.rooms }

// Broadcaster exposes the event broadcaster.
func (g *Gateway) Broadcaster() *broadcast.Broadcaster { return g.caster }

// PublishRequest is the collaborator-facing publish payload.
type PublishRequest struct {
	Type     string                   `json:"type"`
	TenantID string                   `json:"tenant_id"`
	Source   domain.ApplicationType   `json:"source"`
	Payload  json.RawMessage          `json:"payload"`
	Priority domain.Priority          `json:"priority,omitempty"`
	Targets  []domain.ApplicationType `json:"targets,omitempty"`
}

// PublishResult reports routing+dispatch outcome to the publisher. Delivery
// failures past this point are retried in the background and do not surface
// here.
type PublishResult struct {
	EventID string `json:"event_id"`
	Targets int    `json:"targets"`
}

// Publish is the single entry point for domain events from business logic.
func (g *Gateway) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	event := domain.NewEvent(req.Type, req.TenantID, req.Source, req.Payload, req.Priority)
	event.Targets = req.Targets

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	return g.publish(ctx, event, true)
}

func (g *Gateway) publish(ctx context.Context, event *domain.Event, sourceAuthenticated bool) (*PublishResult, error) {
	result := g.router.Route(event, sourceAuthenticated)
	if result.Err != nil {
		g.recordError(result.Err)
		return nil, result.Err
	}

	if err := g.caster.ToTargets(result.Targets, event); err != nil {
		g.recordError(err)
		return nil, err
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldEventID, event.ID).
		Str(log.FieldEventType, event.Type).
		Str(log.FieldTenantID, event.TenantID).
		Int("targets", len(result.Targets)).
		Msg("event dispatched")

	return &PublishResult{EventID: event.ID, Targets: len(result.Targets)}, nil
}

// Health is the introspection snapshot served on /health.
type Health struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Connections   int       `json:"connections"`
	MemoryRatio   float64   `json:"memory_ratio"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
}

// HealthSnapshot computes current gateway health. Memory pressure above 85%
// of the heap degrades the status; above 95% it is unhealthy.
func (g *Gateway) HealthSnapshot() Health {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	ratio := 0.0
	if mem.HeapSys > 0 {
		ratio = float64(mem.HeapAlloc) / float64(mem.HeapSys)
	}

	status := "healthy"
	switch {
	case ratio > 0.95:
		status = "unhealthy"
	case ratio > 0.85:
		status = "degraded"
	}

	g.errMu.Lock()
	lastErr, lastErrAt := g.lastErr, g.lastErrAt
	g.errMu.Unlock()

	return Health{
		Status:        status,
		UptimeSeconds: int64(time.Since(g.started).Seconds()),
		Connections:   g.conns.Count(""),
		MemoryRatio:   ratio,
		LastError:     lastErr,
		LastErrorAt:   lastErrAt,
	}
}

func (g *Gateway) recordError(err error) {
	g.errMu.Lock()
	g.lastErr = err.Error()
	g.lastErrAt = time.Now()
	g.errMu.Unlock()
}

// releaseTenant drops the tenant's instance registration once its last
// connection is gone.
func (g *Gateway) releaseTenant(tenantID string) {
	if g.conns.Count(tenantID) > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.instances.DeregisterTenant(ctx, tenantID); err != nil {
		l := log.L()
		l.Error().Str(log.FieldTenantID, tenantID).Err(err).Msg("failed to deregister tenant")
	}
}

// claimTenant registers the tenant on this instance when its first
// connection arrives.
func (g *Gateway) claimTenant(tenantID string) {
	if g.conns.Count(tenantID) != 1 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.instances.RegisterTenant(ctx, tenantID); err != nil {
		l := log.L()
		l.Error().Str(log.FieldTenantID, tenantID).Err(err).Msg("failed to register tenant")
	}
}
