package domain

import "encoding/json"

// WebSocket frame types from client.
const (
	FrameTypeHeartbeat = "heartbeat"
	FrameTypeJoinRoom  = "join_room"
	FrameTypeLeaveRoom = "leave_room"
	FrameTypePublish   = "publish"
)

// WebSocket frame types to client.
const (
	FrameTypeWelcome      = "welcome"
	FrameTypeHeartbeatAck = "heartbeat_ack"
	FrameTypeEvent        = "event"
	FrameTypeRoomJoined   = "room_joined"
	FrameTypeRoomLeft     = "room_left"
	FrameTypeError        = "error"
)

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseFrame is the base structure for all WebSocket frames.
type BaseFrame struct {
	Type string `json:"type"`
}

// Client -> Server frames

type JoinRoomFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type LeaveRoomFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type PublishFrame struct {
	Type     string          `json:"type"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
	Priority Priority        `json:"priority,omitempty"`
}

// Server -> Client frames

type WelcomeFrame struct {
	Type              string `json:"type"`
	ConnectionID      string `json:"connection_id"`
	HeartbeatInterval int64  `json:"heartbeat_interval_ms"`
}

type EventFrame struct {
	Type  string `json:"type"`
	Event *Event `json:"event"`
}

type RoomFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorFrame(code, message string) *ErrorFrame {
	return &ErrorFrame{
		Type:    FrameTypeError,
		Code:    code,
		Message: message,
	}
}
