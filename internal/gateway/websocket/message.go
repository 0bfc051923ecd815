// Package websocket relays shell and bot events to the UI and accepts UI
// commands over the same connection.
package websocket

import (
	"time"

	"gofshell/internal/botconfig"
)

// WSMessage is the single envelope used in both directions.
type WSMessage struct {
	Type string    `json:"type"`
	Time time.Time `json:"time,omitzero"`

	// Log events.
	Msg    string `json:"msg,omitempty"`
	Stream string `json:"stream,omitempty"` // stdout, stderr
	RunID  string `json:"run_id,omitempty"`

	// Navigation and state.
	Page    string `json:"page,omitempty"`
	Running *bool  `json:"running,omitempty"`
	Path    string `json:"path,omitempty"`

	// Errors.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Inbound start command.
	Request *botconfig.StartRequest `json:"request,omitempty"`
}

// Outbound event types.
const (
	TypeAppLog = "appLog"
	TypeBotLog = "botLog"
	TypeAlert  = "alert"
	TypePage   = "page"
	TypeStatus = "status"
	TypeReload = "reload"
	TypeError  = "error"
	TypePong   = "pong"
	TypeAck    = "ack"
)

// Inbound command types.
const (
	TypePing   = "ping"
	TypeStart  = "start"
	TypeLogout = "logout"
)

// Pages the UI can be told to show.
const (
	PageLogin = "login"
	PageIndex = "index"
)

// isLogEvent reports whether messages of type t are kept in the backlog.
func isLogEvent(t string) bool {
	switch t {
	case TypeAppLog, TypeBotLog, TypeAlert:
		return true
	}
	return false
}
