// Package gateway serves the shell's browser UI: static pages, the HTTP API
// and the WebSocket event channel.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"gofshell/internal/config"
	"gofshell/internal/gateway/handlers"
	"gofshell/internal/gateway/middleware"
	"gofshell/internal/gateway/websocket"
	"gofshell/pkg/logger"
)

// Server represents the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *websocket.Hub
	watcher    *Watcher
	config     *config.Config
	version    string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a gateway server with all routes registered. runs may be
// nil when run history is unavailable.
func NewServer(cfg *config.Config, hub *websocket.Hub, ctrl handlers.Controller, runs handlers.RunStore, version string) *Server {
	router := mux.NewRouter()

	// Apply middleware chain: Recovery -> Logging -> CheckOrigin
	handler := middleware.Recovery(middleware.Logging(middleware.CheckOrigin(router)))

	s := &Server{
		httpServer: &http.Server{
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			// Event stream connections are long lived.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		router:  router,
		hub:     hub,
		config:  cfg,
		version: version,
	}
	s.setupRoutes(ctrl, runs)
	return s
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes(ctrl handlers.Controller, runs handlers.RunStore) {
	var running func() bool
	if ctrl != nil {
		running = func() bool { return ctrl.Status().Running }
	}
	s.router.HandleFunc("/api/v1/health", handlers.HealthHandler(s.version, running)).Methods(http.MethodGet)

	if ctrl != nil {
		handlers.NewBotHandler(ctrl, runs).RegisterRoutes(s.router)
	}

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	s.router.Handle("/", http.RedirectHandler("/"+websocket.PageLogin+".html", http.StatusFound))
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.PagesDir())))
}

// Listen binds the configured address. Separate from Serve so callers learn
// about a busy port before anything else starts.
func (s *Server) Listen() error {
	addr := s.config.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer.Addr = ln.Addr().String()
	s.mu.Unlock()
	return nil
}

// Serve runs the hub and serves HTTP until Shutdown. Listen must be called
// first.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("gateway: Serve called before Listen")
	}

	handlers.InitStartTime()
	go s.hub.Run()

	logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Start listens and serves.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	if s.watcher != nil {
		s.watcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		// Serve may never have run; Shutdown only closes listeners it tracks.
		_ = s.listener.Close()
	}
	s.mu.Unlock()
	s.hub.Close()
	if err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr()
}

// URL returns the address the UI should be opened at.
func (s *Server) URL() string {
	return "http://" + s.Addr() + "/"
}

// SetWatcher sets the bot config watcher stopped on Shutdown.
func (s *Server) SetWatcher(w *Watcher) {
	s.watcher = w
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
