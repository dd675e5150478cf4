package server

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/pkg/log"
	"github.com/dinehub/realtime-gateway/pkg/response"
)

// HTTPHandler exposes the collaborator-facing REST surface: event publishing
// plus health and stats introspection.
type HTTPHandler struct {
	gateway *Gateway
}

func NewHTTPHandler(g *Gateway) *HTTPHandler {
	return &HTTPHandler{gateway: g}
}

// RegisterRoutes mounts all gateway routes on the engine.
func (h *HTTPHandler) RegisterRoutes(engine *gin.Engine, ws *WSHandler) {
	engine.GET("/ws", ws.HandleWebSocket)
	engine.GET("/health", h.handleHealth)
	engine.GET("/stats", h.handleStats)

	api := engine.Group("/api")
	api.POST("/events", h.handlePublish)
	api.POST("/tokens", h.handleIssueToken)
}

func (h *HTTPHandler) handleHealth(c *gin.Context) {
	response.Success(c, h.gateway.HealthSnapshot())
}

type statsPayload struct {
	Connections int            `json:"connections"`
	Tenants     map[string]int `json:"tenants"`
	Rooms       int            `json:"rooms"`
	QueueDepth  int            `json:"queue_depth"`
	Delivered   int64          `json:"retries_delivered"`
	Failed      int64          `json:"retries_failed"`
	Expired     int64          `json:"retries_expired"`
}

func (h *HTTPHandler) handleStats(c *gin.Context) {
	g := h.gateway

	tenants := make(map[string]int)
	for _, t := range g.conns.Tenants() {
		tenants[t] = g.conns.Count(t)
	}

	stats := g.queue.Snapshot()
	response.Success(c, statsPayload{
		Connections: g.conns.Count(""),
		Tenants:     tenants,
		Rooms:       g.rooms.RoomCount(),
		QueueDepth:  g.queue.Len(),
		Delivered:   stats.Delivered,
		Failed:      stats.Failed,
		Expired:     stats.Expired,
	})
}

// handlePublish is the "publish domain event" entry point for the order,
// kitchen and delivery business services.
func (h *HTTPHandler) handlePublish(c *gin.Context) {
	if !h.gateway.limiter.allow(c.ClientIP()) {
		response.TooManyRequests(c, "publish rate limit exceeded")
		return
	}

	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid publish request")
		return
	}

	result, err := h.gateway.Publish(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoRoutingRule):
			response.NotFound(c, err.Error())
		case errors.Is(err, domain.ErrCrossTenantDelivery):
			response.Forbidden(c, err.Error())
		default:
			response.BadRequest(c, err.Error())
		}
		return
	}

	c.Set(log.FieldTenantID, req.TenantID)
	response.Accepted(c, result)
}

type tokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	TenantID string `json:"tenant_id" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// handleIssueToken mints a credential token. Meant for operators and local
// development; production tokens come from the identity service.
func (h *HTTPHandler) handleIssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid token request")
		return
	}

	role := domain.Role(req.Role)
	if !role.Valid() {
		response.BadRequest(c, "unknown role")
		return
	}

	token, err := h.gateway.auth.Issue(req.UserID, req.TenantID, role)
	if err != nil {
		response.InternalError(c, "failed to issue token")
		return
	}

	response.Success(c, gin.H{"token": token})
}
