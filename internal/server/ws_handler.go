package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dinehub/realtime-gateway/internal/audit"
	"github.com/dinehub/realtime-gateway/internal/connection"
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// WSHandler upgrades and serves gateway websocket connections.
type WSHandler struct {
	gateway  *Gateway
	upgrader websocket.Upgrader
}

func NewWSHandler(g *Gateway) *WSHandler {
	allowed := g.cfg.Server.AllowedOrigins
	return &WSHandler{
		gateway: g,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowed, r.Header.Get("Origin"))
			},
		},
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket authenticates the handshake, registers the connection and
// starts its pumps. The credential token and declared application type
// travel in the query string (or Authorization header for the token).
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	g := h.gateway
	ctx := c.Request.Context()

	if !g.limiter.allow(c.ClientIP()) {
		audit.Log(ctx, audit.ActionRateLimited, "", "handshake rate limited")
		c.AbortWithStatus(http.StatusTooManyRequests)
		return
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	user, err := g.auth.Verify(token)
	if err != nil {
		audit.Log(ctx, audit.ActionAuthFailed, "", "websocket handshake rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	app, err := domain.ParseApplicationType(c.Query("app"))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if !user.MayJoin(app) {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, user.TenantID, app.String(),
			"identity not granted for application")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	client := connection.NewClient(connID, wsConn, g.cfg.WebSocket)
	conn := connection.New(connID, user.UserID, user.TenantID, app, client, connection.Metadata{
		UserAgent:     c.Request.UserAgent(),
		ClientVersion: c.GetHeader("X-Client-Version"),
	})

	if err := g.conns.Register(conn); err != nil {
		l := log.Ctx(ctx)
		l.Error().Str(log.FieldConnectionID, connID).Err(err).Msg("connection registration failed")
		wsConn.Close()
		return
	}
	g.claimTenant(user.TenantID)

	// Every connection observes its tenant and application scopes.
	g.rooms.Join(connID, domain.TenantRoom(user.TenantID))
	g.rooms.Join(connID, domain.ApplicationRoom(user.TenantID, app))

	audit.Log(ctx, audit.ActionConnect, user.TenantID, "connection established")

	client.SendFrame(&domain.WelcomeFrame{
		Type:              domain.FrameTypeWelcome,
		ConnectionID:      connID,
		HeartbeatInterval: g.cfg.Heartbeat.Interval.Milliseconds(),
	})

	go client.WritePump()
	go client.ReadPump(
		func(message []byte) { h.handleFrame(conn, client, message) },
		func() { h.disconnect(conn) },
	)
}

func (h *WSHandler) handleFrame(conn *connection.Connection, client *connection.Client, message []byte) {
	var base domain.BaseFrame
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "Invalid frame format"))
		return
	}

	switch base.Type {
	case domain.FrameTypeHeartbeat:
		h.gateway.conns.Heartbeat(conn.ID)
		client.SendFrame(&domain.BaseFrame{Type: domain.FrameTypeHeartbeatAck})

	case domain.FrameTypeJoinRoom:
		var frame domain.JoinRoomFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "Invalid join_room frame"))
			return
		}
		h.handleJoin(conn, client, frame.Room)

	case domain.FrameTypeLeaveRoom:
		var frame domain.LeaveRoomFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "Invalid leave_room frame"))
			return
		}
		h.handleLeave(conn, client, frame.Room)

	case domain.FrameTypePublish:
		var frame domain.PublishFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "Invalid publish frame"))
			return
		}
		h.handlePublish(conn, client, &frame)

	default:
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "Unknown frame type"))
	}
}

func (h *WSHandler) handleJoin(conn *connection.Connection, client *connection.Client, roomName string) {
	roomID, err := domain.ParseRoomName(roomName)
	if err != nil {
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "Malformed room name"))
		return
	}

	if err := h.gateway.rooms.Join(conn.ID, roomID); err != nil {
		audit.LogWithDetail(context.Background(), audit.ActionCrossTenantBlocked, conn.TenantID,
			roomID.Name(), "room join rejected")
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeForbidden, "Cannot join room"))
		return
	}

	client.SendFrame(&domain.RoomFrame{Type: domain.FrameTypeRoomJoined, Room: roomID.Name()})
}

func (h *WSHandler) handleLeave(conn *connection.Connection, client *connection.Client, roomName string) {
	roomID, err := domain.ParseRoomName(roomName)
	if err != nil {
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, "Malformed room name"))
		return
	}

	h.gateway.rooms.Leave(conn.ID, roomID)
	client.SendFrame(&domain.RoomFrame{Type: domain.FrameTypeRoomLeft, Room: roomID.Name()})
}

// handlePublish lets an authenticated connection publish a domain event over
// its own socket. Tenant and source come from the connection, never from the
// frame, so a client cannot publish into another tenant.
func (h *WSHandler) handlePublish(conn *connection.Connection, client *connection.Client, frame *domain.PublishFrame) {
	event := domain.NewEvent(frame.Event, conn.TenantID, conn.Application, frame.Payload, frame.Priority)

	if err := event.Validate(); err != nil {
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeBadRequest, err.Error()))
		return
	}

	if _, err := h.gateway.publish(context.Background(), event, true); err != nil {
		client.SendFrame(domain.NewErrorFrame(domain.ErrCodeInternalError, "Event could not be routed"))
	}
}

func (h *WSHandler) disconnect(conn *connection.Connection) {
	g := h.gateway
	if removed := g.conns.Remove(conn.ID); removed == nil {
		return // already evicted
	}
	g.rooms.RemoveConnection(conn.ID)
	g.releaseTenant(conn.TenantID)
	audit.Log(context.Background(), audit.ActionDisconnect, conn.TenantID, "connection closed")
}
