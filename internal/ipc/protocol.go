// Package ipc implements the shell's local control socket: a framed JSON
// request/response protocol over a Unix socket, or a named pipe on Windows.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"gofshell/internal/config"
)

const (
	// WindowsPipeName is the Windows Named Pipe path
	WindowsPipeName = `\\.\pipe\gofshell`

	// ProtocolVersion is the current IPC protocol version
	ProtocolVersion = "1.0"

	// MaxMessageSize is the maximum allowed message size (1MB)
	MaxMessageSize = 1024 * 1024

	// HeaderSize is the size of the length header (4 bytes)
	HeaderSize = 4
)

// ErrSocketInUse is returned by Server.Start when another shell already
// answers on the socket.
var ErrSocketInUse = errors.New("control socket is in use by another shell")

// ErrDial is returned by Dial when nothing answers on the socket.
var ErrDial = errors.New("cannot connect to shell")

// MessageType defines the type of IPC message
type MessageType string

// Requests.
const (
	MsgStartBot  MessageType = "start_bot"
	MsgLogout    MessageType = "logout"
	MsgGetStatus MessageType = "get_status"
	MsgShowLogin MessageType = "show_login"
	MsgQuit      MessageType = "quit"
	MsgPing      MessageType = "ping"
)

// Replies.
const (
	MsgResult MessageType = "result"
	MsgError  MessageType = "error"
)

// Error codes carried in ErrorPayload.
const (
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeAlreadyRunning = "ALREADY_RUNNING"
	CodeFailed         = "FAILED"
)

// Message represents an IPC message between processes
type Message struct {
	ID        string          `json:"id"`
	Version   string          `json:"version"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ReplyTo   string          `json:"reply_to,omitempty"`
}

// NewMessage creates a new message with the given type.
func NewMessage(msgType MessageType) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Version:   ProtocolVersion,
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithPayload sets the payload from any serializable value
func (m *Message) WithPayload(payload any) *Message {
	data, err := json.Marshal(payload)
	if err == nil {
		m.Payload = data
	}
	return m
}

// WithReplyTo sets the reply-to field
func (m *Message) WithReplyTo(replyTo string) *Message {
	m.ReplyTo = replyTo
	return m
}

// ParsePayload unmarshals the payload into the given target
func (m *Message) ParsePayload(target any) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, target)
}

// StatusPayload answers MsgGetStatus.
type StatusPayload struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	BotDir    string    `json:"bot_dir"`
	UIURL     string    `json:"ui_url"`
}

// ErrorPayload is the payload for MsgError. It is also the error returned by
// Client.Call when the server reports a failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorPayload) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an ErrorPayload a handler can return to pick the code.
func NewError(code, message string) *ErrorPayload {
	return &ErrorPayload{Code: code, Message: message}
}

// IsCode reports whether err is an ErrorPayload with the given code.
func IsCode(err error, code string) bool {
	var e *ErrorPayload
	return errors.As(err, &e) && e.Code == code
}

// Handler serves one request type. The returned value becomes the result
// payload.
type Handler interface {
	Handle(msg *Message) (any, error)
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers
type HandlerFunc func(msg *Message) (any, error)

// Handle implements Handler interface
func (f HandlerFunc) Handle(msg *Message) (any, error) {
	return f(msg)
}

// DefaultSocketPath returns the control socket path for this platform.
func DefaultSocketPath() (string, error) {
	if runtime.GOOS == "windows" {
		return WindowsPipeName, nil
	}
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gui.sock"), nil
}
