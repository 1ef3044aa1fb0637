package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/protocol"
	"live-slide-sync-service/internal/service/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	// outboundBuffer holds frames generated locally (error responses)
	// alongside the session broadcast stream.
	outboundBuffer = 16
)

// conn is one viewer connection. The read loop runs on the HTTP handler
// goroutine; the write loop and the broadcast forwarder run on their
// own, so a stalled peer only stalls itself.
type conn struct {
	id   string
	role models.ViewerRole
	ws   *websocket.Conn
	hub  *session.Hub

	out  chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	sess   *session.Session
	viewer *session.Viewer

	logger zerolog.Logger
}

func newConn(id string, role models.ViewerRole, ws *websocket.Conn, hub *session.Hub) *conn {
	return &conn{
		id:     id,
		role:   role,
		ws:     ws,
		hub:    hub,
		out:    make(chan []byte, outboundBuffer),
		done:   make(chan struct{}),
		logger: logging.WithViewer("", id, string(role)),
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *conn) session() (*session.Session, *session.Viewer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess, c.viewer
}

// readLoop consumes frames until the peer disconnects: JSON text frames
// carry protocol messages, binary frames carry raw audio.
func (c *conn) readLoop() {
	defer func() {
		sess, _ := c.session()
		if sess != nil {
			sess.UnregisterViewer(c.id)
		}
		c.shutdown()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Viewer connection dropped")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleAudio(data)
		case websocket.TextMessage:
			c.handleMessage(data)
		}
	}
}

// writeLoop delivers outbound frames and keeps the transport alive with
// pings. Owns all writes to the socket.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			// Flush anything still queued (e.g. SESSION_ENDED) before the
			// close handshake.
			for {
				select {
				case frame := <-c.out:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					c.ws.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case frame := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forward pipes session broadcasts into the connection's outbound
// stream. When the session closes the viewer (kick, timeout, end), the
// connection shuts down and the client reconnects for a fresh state.
func (c *conn) forward(v *session.Viewer) {
	for frame := range v.Outbound() {
		select {
		case c.out <- frame:
		case <-c.done:
			return
		}
	}
	c.shutdown()
}

func (c *conn) handleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			c.logger.Debug().Err(err).Msg("Ignoring unknown message type")
		} else {
			c.logger.Debug().Err(err).Msg("Dropping malformed message")
		}
		return
	}

	switch m := msg.(type) {
	case protocol.StartSession:
		c.handleStartSession(m)
	case protocol.Command:
		c.handleCommand(m)
	case protocol.UpdateSettings:
		c.handleUpdateSettings(m)
	case protocol.Heartbeat:
		if sess, _ := c.session(); sess != nil {
			sess.Heartbeat(c.id)
		}
	}
}

// handleStartSession joins (or starts) the event's session. Both roles
// may send it: projectors auto-start so they can receive broadcasts
// before the operator arrives.
func (c *conn) handleStartSession(m protocol.StartSession) {
	if sess, _ := c.session(); sess != nil {
		// Already joined; re-send nothing, broadcasts continue.
		c.logger.Debug().Msg("Duplicate START_SESSION ignored")
		return
	}
	if m.EventID == "" {
		c.sendError("BAD_REQUEST", "eventId is required")
		return
	}

	sess, err := c.hub.StartSession(context.Background(), m.EventID)
	if err != nil {
		c.logger.Warn().Err(err).Str("eventId", m.EventID).Msg("Session start failed")
		c.sendError("SESSION_START_FAILED", err.Error())
		return
	}
	viewer, err := sess.RegisterViewer(c.id, c.role)
	if err != nil {
		c.sendError("SESSION_ENDED", err.Error())
		return
	}

	c.mu.Lock()
	c.sess = sess
	c.viewer = viewer
	c.mu.Unlock()
	c.logger = logging.WithViewer(m.EventID, c.id, string(c.role))

	go c.forward(viewer)
}

func (c *conn) handleCommand(m protocol.Command) {
	sess, _ := c.session()
	if sess == nil {
		c.sendError("NO_SESSION", "send START_SESSION first")
		return
	}
	if c.role != models.RoleOperator {
		c.sendError("OPERATOR_ONLY", "command requires the operator role")
		return
	}

	switch m.Type {
	case protocol.TypeNext:
		sess.Next()
	case protocol.TypePrev:
		sess.Prev()
	case protocol.TypeEndSession:
		sess.End("operator request")
	}
}

func (c *conn) handleUpdateSettings(m protocol.UpdateSettings) {
	sess, _ := c.session()
	if sess == nil {
		c.sendError("NO_SESSION", "send START_SESSION first")
		return
	}
	if c.role != models.RoleOperator {
		c.sendError("OPERATOR_ONLY", "settings update requires the operator role")
		return
	}
	sess.UpdateSettings(m.Settings)
}

// handleAudio streams microphone audio into the session's recognition
// pipeline. Only the operator console carries the leader's microphone.
func (c *conn) handleAudio(data []byte) {
	sess, _ := c.session()
	if sess == nil || c.role != models.RoleOperator {
		return
	}
	if err := sess.WriteAudio(context.Background(), data); err != nil {
		c.logger.Debug().Err(err).Msg("Audio write failed")
	}
}

// sendError reports a rejected request to this viewer only.
func (c *conn) sendError(code, message string) {
	data, err := protocol.Encode(protocol.Error{
		Type:    protocol.TypeError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	select {
	case c.out <- data:
	case <-c.done:
	}
}
