package ipc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultDialTimeout bounds connecting to the shell.
const DefaultDialTimeout = 2 * time.Second

// Client sends requests to a running shell.
type Client struct {
	conn    net.Conn
	encoder *Encoder
	decoder *Decoder
	mu      sync.Mutex
}

// Dial connects to the control socket at path.
func Dial(path string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	conn, err := dialPipe(path, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrDial, path, err)
	}
	return &Client{
		conn:    conn,
		encoder: NewEncoder(conn),
		decoder: NewDecoder(conn),
	}, nil
}

// Call sends one request and decodes the result payload into out, which may
// be nil. A server-side failure is returned as *ErrorPayload.
func (c *Client) Call(ctx context.Context, msgType MessageType, payload, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(idleTimeout)
	}
	_ = c.conn.SetDeadline(deadline)

	// Unblock the read if ctx is canceled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	req := NewMessage(msgType)
	if payload != nil {
		req.WithPayload(payload)
	}
	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}

	reply, err := c.decoder.Decode()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read %s reply: %w", msgType, err)
	}
	if reply.ReplyTo != req.ID {
		return fmt.Errorf("reply to %q does not match request %q", reply.ReplyTo, req.ID)
	}

	switch reply.Type {
	case MsgError:
		var e ErrorPayload
		if err := reply.ParsePayload(&e); err != nil {
			return fmt.Errorf("decode error reply: %w", err)
		}
		return &e
	case MsgResult:
		if out == nil {
			return nil
		}
		return reply.ParsePayload(out)
	default:
		return fmt.Errorf("unexpected reply type %q", reply.Type)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send dials path, makes one call and closes the connection.
func Send(ctx context.Context, path string, msgType MessageType, payload, out any) error {
	c, err := Dial(path, DefaultDialTimeout)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Call(ctx, msgType, payload, out)
}
