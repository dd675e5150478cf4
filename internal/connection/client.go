package connection

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dinehub/realtime-gateway/internal/config"
	"github.com/dinehub/realtime-gateway/internal/domain"
	"github.com/dinehub/realtime-gateway/pkg/log"
)

// Client pumps frames between a websocket and the gateway. The write pump is
// the single writer of the socket; everything reaches it through the send
// channel, which also gives per-connection delivery ordering.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	cfg  config.WebSocketConfig

	closeOnce sync.Once
}

func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		cfg:  cfg,
	}
}

// Send queues an event frame for the write pump. A saturated buffer means a
// slow consumer; the caller decides whether to retry via the delivery queue.
func (c *Client) Send(event *domain.Event) error {
	return c.SendFrame(&domain.EventFrame{Type: domain.FrameTypeEvent, Event: event})
}

// SendFrame queues an arbitrary frame for the write pump.
func (c *Client) SendFrame(frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return domain.ErrConnectionInactive
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

// Close shuts the socket down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ReadPump reads frames until the socket dies, invoking handler for each.
// onClose runs exactly once when the pump exits.
func (c *Client) ReadPump(handler func([]byte), onClose func()) {
	defer func() {
		onClose()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Str(log.FieldConnectionID, c.id).Err(err).Msg("websocket read error")
			}
			break
		}

		handler(message)
	}
}

// WritePump drains the send channel onto the socket and keeps the transport
// alive with protocol-level pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
