package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"gofshell/pkg/logger"
)

const (
	// idleTimeout closes connections that send nothing.
	idleTimeout  = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// Server is the control socket server run by the shell.
type Server struct {
	listener   net.Listener
	socketPath string

	handlers   map[MessageType]Handler
	handlersMu sync.RWMutex

	conns   map[net.Conn]struct{}
	connsMu sync.Mutex
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server for the given socket path. Register handlers
// before Start.
func NewServer(socketPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		socketPath: socketPath,
		handlers:   make(map[MessageType]Handler),
		conns:      make(map[net.Conn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.Handle(MsgPing, HandlerFunc(func(*Message) (any, error) {
		return nil, nil
	}))

	return s
}

// Handle registers the handler for a request type, replacing any previous one.
func (s *Server) Handle(msgType MessageType, handler Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[msgType] = handler
}

// Start starts listening and serving in the background.
func (s *Server) Start() error {
	listener, err := listenPipe(s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}
	s.listener = listener

	logger.Infof("Control socket listening on %s", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and all connections and waits for in-flight
// requests to finish. It must not be called from a Handler.
func (s *Server) Stop() error {
	s.cancel()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	if s.listener != nil {
		cleanupPipe(s.socketPath)
	}

	logger.Info().Msg("Control socket stopped")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// SocketPath returns the socket path being used
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warnf("failed to accept connection: %v", err)
			continue
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		s.wg.Done()
	}()

	decoder := NewDecoder(conn)
	encoder := NewEncoder(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))

		msg, err := decoder.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				var netErr net.Error
				if !errors.As(err, &netErr) || !netErr.Timeout() {
					logger.Warnf("failed to decode control message: %v", err)
				}
			}
			return
		}

		reply := s.dispatch(msg)

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := encoder.Encode(reply); err != nil {
			logger.Warnf("failed to write control reply: %v", err)
			return
		}
	}
}

// dispatch runs the handler for msg and builds the reply.
func (s *Server) dispatch(msg *Message) *Message {
	s.handlersMu.RLock()
	handler, ok := s.handlers[msg.Type]
	s.handlersMu.RUnlock()

	if !ok {
		return NewMessage(MsgError).
			WithReplyTo(msg.ID).
			WithPayload(NewError(CodeUnknownType, fmt.Sprintf("unknown message type %q", msg.Type)))
	}

	result, err := handler.Handle(msg)
	if err != nil {
		var payload *ErrorPayload
		if !errors.As(err, &payload) {
			payload = NewError(CodeFailed, err.Error())
		}
		logger.Debug().Str("type", string(msg.Type)).Str("code", payload.Code).Msg("Control request failed")
		return NewMessage(MsgError).WithReplyTo(msg.ID).WithPayload(payload)
	}

	reply := NewMessage(MsgResult).WithReplyTo(msg.ID)
	if result != nil {
		reply.WithPayload(result)
	}
	return reply
}
