package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gofshell/internal/botconfig"
	"gofshell/internal/gateway/middleware"
	"gofshell/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Error codes sent to the UI.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeStartFailed    = "START_FAILED"
	ErrCodeLogoutFailed   = "LOGOUT_FAILED"
	ErrCodeNoHandler      = "NO_HANDLER"
)

// The UI is served by the shell itself on a loopback address, so only
// same-origin and file:// pages are accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin applies the API's origin rule to the upgrade; the socket accepts
// start and logout commands too.
func checkOrigin(r *http.Request) bool {
	return middleware.SameOrigin(r)
}

// Client represents one UI connection.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	connectedAt time.Time

	// Last event sequence covered by the register replay. Owned by Hub.Run.
	replayedThrough uint64
}

// NewClient creates a new client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          uuid.New().String(),
		connectedAt: time.Now(),
	}
}

// readPump pumps commands from the WebSocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes an inbound command.
func (c *Client) handleMessage(message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Error().Err(err).Str("client_id", c.id).Msg("Failed to parse WebSocket message")
		c.sendError(ErrCodeInvalidMessage, "failed to parse message")
		return
	}

	logger.Debug().Str("client_id", c.id).Str("type", msg.Type).Msg("Received WebSocket message")

	switch msg.Type {
	case TypePing:
		c.sendMessage(&WSMessage{Type: TypePong})

	case TypeStart:
		if msg.Request == nil {
			c.sendError(ErrCodeInvalidRequest, "start requires a request")
			return
		}
		c.runCommand(TypeStart, ErrCodeStartFailed, func(h CommandHandler) error {
			return h.StartBot(*msg.Request)
		})

	case TypeLogout:
		c.runCommand(TypeLogout, ErrCodeLogoutFailed, func(h CommandHandler) error {
			return h.Logout()
		})

	default:
		logger.Debug().Str("client_id", c.id).Str("type", msg.Type).Msg("Unknown message type")
	}
}

func (c *Client) runCommand(name, failCode string, fn func(CommandHandler) error) {
	h := c.hub.commandHandler()
	if h == nil {
		c.sendError(ErrCodeNoHandler, "command handler not configured")
		return
	}
	if err := fn(h); err != nil {
		logger.Warn().Err(err).Str("client_id", c.id).Str("command", name).Msg("UI command failed")
		code := failCode
		var walkErr *botconfig.WalkSpeedError
		if errors.As(err, &walkErr) || errors.Is(err, botconfig.ErrUnknownAuth) ||
			errors.Is(err, botconfig.ErrMissingUsername) || errors.Is(err, botconfig.ErrInvalidUsername) {
			code = ErrCodeInvalidRequest
		}
		c.sendError(code, err.Error())
		return
	}
	c.sendMessage(&WSMessage{Type: TypeAck, Message: name})
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendMessage(msg *WSMessage) {
	data, _ := json.Marshal(msg)
	select {
	case c.send <- data:
	default:
		// Buffer full
	}
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(&WSMessage{Type: TypeError, Code: code, Message: message})
}

// ServeWs upgrades a UI request and attaches it to the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(hub, conn)
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
