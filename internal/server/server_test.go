package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinehub/realtime-gateway/internal/config"
	"github.com/dinehub/realtime-gateway/internal/connection"
	"github.com/dinehub/realtime-gateway/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"*"}},
		WebSocket: config.WebSocketConfig{
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			MaxMessageSize: 8192,
			SendBuffer:     16,
		},
		Heartbeat: config.HeartbeatConfig{Interval: time.Minute, MaxMissed: 2},
		Retry: config.RetryConfig{
			MaxAttempts:       3,
			BaseDelay:         5 * time.Millisecond,
			MaxDelay:          20 * time.Millisecond,
			BackoffMultiplier: 2.0,
			MessageTTL:        time.Minute,
		},
		Security: config.SecurityConfig{
			TokenSecret: "test-secret",
			RateLimit:   config.RateLimitConfig{Window: time.Minute, MaxRequests: 1000},
		},
		Rooms: config.RoomsConfig{IdleTTL: 5 * time.Minute, SweepInterval: time.Minute},
	}
}

type memorySender struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (s *memorySender) Send(event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySender) Close() {}

func (s *memorySender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := New(testConfig(), nil)
	require.NoError(t, err)
	return g
}

func attach(t *testing.T, g *Gateway, id, tenantID string, app domain.ApplicationType) *memorySender {
	t.Helper()
	sender := &memorySender{}
	conn := connection.New(id, "user-"+id, tenantID, app, sender, connection.Metadata{})
	require.NoError(t, g.conns.Register(conn))
	require.NoError(t, g.rooms.Join(id, domain.TenantRoom(tenantID)))
	require.NoError(t, g.rooms.Join(id, domain.ApplicationRoom(tenantID, app)))
	return sender
}

func TestGateway_New_RequiresTokenSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Security.TokenSecret = ""
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestGateway_PublishRoutesWithinTenant(t *testing.T) {
	g := newTestGateway(t)

	kitchenA := attach(t, g, "c1", "tenant-a", domain.AppKitchen)
	customerA := attach(t, g, "c2", "tenant-a", domain.AppCustomer)
	kitchenB := attach(t, g, "c3", "tenant-b", domain.AppKitchen)
	dashboardA := attach(t, g, "c4", "tenant-a", domain.AppDashboard)

	result, err := g.Publish(context.Background(), PublishRequest{
		Type:     "order:created",
		TenantID: "tenant-a",
		Source:   domain.AppCustomer,
		Payload:  json.RawMessage(`{"order_id":"o-1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Targets)

	// order:created targets kitchen and dashboard of the event's tenant only.
	assert.Equal(t, 1, kitchenA.count())
	assert.Equal(t, 1, dashboardA.count())
	assert.Equal(t, 0, customerA.count())
	assert.Equal(t, 0, kitchenB.count())
}

func TestGateway_PublishUnknownType(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.Publish(context.Background(), PublishRequest{
		Type:     "billing:invoice_paid",
		TenantID: "tenant-a",
		Source:   domain.AppDashboard,
		Payload:  json.RawMessage(`{}`),
	})
	assert.Error(t, err)
}

func TestGateway_PublishNoRule(t *testing.T) {
	g := newTestGateway(t)
	g.router.RemoveRule("order:created", domain.AppCustomer)

	_, err := g.Publish(context.Background(), PublishRequest{
		Type:     "order:created",
		TenantID: "tenant-a",
		Source:   domain.AppCustomer,
		Payload:  json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, domain.ErrNoRoutingRule)

	health := g.HealthSnapshot()
	assert.NotEmpty(t, health.LastError)
}

func TestGateway_PublishWithNoTargetsSucceeds(t *testing.T) {
	g := newTestGateway(t)

	// No connections online: routing succeeds with an empty fan-out.
	result, err := g.Publish(context.Background(), PublishRequest{
		Type:     "order:created",
		TenantID: "tenant-a",
		Source:   domain.AppCustomer,
		Payload:  json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Targets)
}

func TestGateway_DefaultRulesCoverKnownNamespaces(t *testing.T) {
	rules := DefaultRules()
	require.NotEmpty(t, rules)

	for _, rule := range rules {
		assert.True(t, domain.KnownEventType(rule.EventType), "rule %q must use a known event type", rule.EventType)
		assert.True(t, rule.RequireAuth, "rule %q must require an authenticated source", rule.EventType)
		assert.True(t, rule.TenantIsolated, "rule %q must be tenant isolated", rule.EventType)
		assert.NotEmpty(t, rule.Targets)
	}
}

func TestGateway_HealthSnapshot(t *testing.T) {
	g := newTestGateway(t)
	attach(t, g, "c1", "tenant-a", domain.AppCustomer)

	health := g.HealthSnapshot()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Connections)
	assert.GreaterOrEqual(t, health.MemoryRatio, 0.0)
}

func newTestEngine(t *testing.T, g *Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHTTPHandler(g).RegisterRoutes(engine, NewWSHandler(g))
	return engine
}

func TestHTTP_Health(t *testing.T) {
	engine := newTestEngine(t, newTestGateway(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestHTTP_Stats(t *testing.T) {
	g := newTestGateway(t)
	attach(t, g, "c1", "tenant-a", domain.AppKitchen)
	engine := newTestEngine(t, g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connections":1`)
	assert.Contains(t, w.Body.String(), "tenant-a")
}

func TestHTTP_PublishEvent(t *testing.T) {
	g := newTestGateway(t)
	kitchen := attach(t, g, "c1", "tenant-a", domain.AppKitchen)
	engine := newTestEngine(t, g)

	body := `{"type":"order:created","tenant_id":"tenant-a","source":"customer_app","payload":{"order_id":"o-1"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, kitchen.count())
}

func TestHTTP_PublishEventErrors(t *testing.T) {
	g := newTestGateway(t)
	engine := newTestEngine(t, g)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `{{{`, http.StatusBadRequest},
		{"unknown event type", `{"type":"billing:invoice_paid","tenant_id":"tenant-a","source":"customer_app","payload":{}}`, http.StatusBadRequest},
		{"no routing rule", `{"type":"kitchen:ticket_ready","tenant_id":"tenant-a","source":"customer_app","payload":{}}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			engine.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHTTP_IssueToken(t *testing.T) {
	g := newTestGateway(t)
	engine := newTestEngine(t, g)

	body := `{"user_id":"user-1","tenant_id":"tenant-a","role":"kitchen_staff"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)

	user, err := g.auth.Verify(resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.UserID)
	assert.Equal(t, domain.RoleKitchenStaff, user.Role)
}

func TestHTTP_IssueTokenRejectsUnknownRole(t *testing.T) {
	engine := newTestEngine(t, newTestGateway(t))

	body := `{"user_id":"user-1","tenant_id":"tenant-a","role":"superuser"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tokens", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWS_HandshakeRejections(t *testing.T) {
	g := newTestGateway(t)
	engine := newTestEngine(t, g)

	token, err := g.auth.Issue("user-1", "tenant-a", domain.RoleCustomer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing token", "/ws?app=customer_app", http.StatusUnauthorized},
		{"garbage token", "/ws?app=customer_app&token=garbage", http.StatusUnauthorized},
		{"unknown app", "/ws?app=mainframe&token=" + token, http.StatusBadRequest},
		{"app outside role grant", "/ws?app=kitchen_app&token=" + token, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			engine.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		ok      bool
	}{
		{"no origin header", []string{"https://app.example.com"}, "", true},
		{"wildcard", []string{"*"}, "https://anything.example.com", true},
		{"exact match", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"case insensitive", []string{"https://App.Example.com"}, "https://app.example.com", true},
		{"not listed", []string{"https://app.example.com"}, "https://evil.example.com", false},
		{"empty list", nil, "https://app.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, originAllowed(tt.allowed, tt.origin))
		})
	}
}
