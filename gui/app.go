// Package main contains the application lifecycle management.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gofshell/gui/internal/backend"
	"gofshell/internal/botconfig"
	"gofshell/internal/config"
	"gofshell/internal/cron"
	"gofshell/internal/gateway"
	"gofshell/internal/gateway/handlers"
	"gofshell/internal/gateway/websocket"
	"gofshell/internal/ipc"
	"gofshell/internal/storage"
	"gofshell/pkg/logger"
)

// Number of log events replayed to a UI that connects late.
const logBacklog = 500

// AppOptions are the run-time switches of the shell that do not belong in the
// config file.
type AppOptions struct {
	// SocketPath overrides the control socket location.
	SocketPath string
	// OpenBrowser opens the login page once the gateway is up.
	OpenBrowser bool
	Version     string
}

// App struct holds the application state and dependencies.
type App struct {
	cfg    *config.Config
	opts   AppOptions
	logger zerolog.Logger

	hub        *websocket.Hub
	db         *storage.DB
	reconciler *botconfig.Reconciler
	bot        *backend.BotProcess
	server     *gateway.Server
	control    *ipc.Server
	pruner     *cron.Pruner

	mu      sync.Mutex
	started bool
	closing bool
	// runID names the child the started flag belongs to.
	runID string

	serveErr     chan error
	quit         chan struct{}
	quitOnce     sync.Once
	shutdownOnce sync.Once
}

// NewApp creates a new App application struct.
func NewApp(cfg *config.Config, opts AppOptions) *App {
	return &App{
		cfg:      cfg,
		opts:     opts,
		logger:   logger.Component("shell"),
		serveErr: make(chan error, 1),
		quit:     make(chan struct{}),
	}
}

// startup wires every component and starts serving. On error the caller must
// still call shutdown to release what was started.
func (a *App) startup(ctx context.Context) error {
	a.logger.Info().Str("root", a.cfg.App.Root).Msg("Shell starting")
	backend.InitLogger()

	a.hub = websocket.NewHub(logBacklog)
	a.hub.SetCommandHandler(a)

	var runs handlers.RunStore
	var recorder backend.RunRecorder
	db, err := storage.Open(a.cfg.Storage.Path)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Run history unavailable")
	} else {
		a.db = db
		runs, recorder = db, db
		if n, err := db.CloseDanglingRuns(time.Now()); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close dangling runs")
		} else if n > 0 {
			a.logger.Info().Int64("count", n).Msg("Closed runs left open by a previous shell")
		}

		a.pruner = cron.NewPruner(db, a.cfg.History.Retention, a.logger)
		if err := a.pruner.Start(a.cfg.History.PruneSchedule); err != nil {
			a.logger.Warn().Err(err).Msg("Run history pruning disabled")
		}
	}

	botDir := a.cfg.BotDir()
	a.reconciler = botconfig.NewReconciler(botDir, a.logger)

	a.bot = backend.NewBotProcess(backend.ProcessConfig{
		Command:     a.cfg.PythonCommand(),
		Args:        []string{a.cfg.Bot.Script},
		Dir:         botDir,
		Env:         append(os.Environ(), "PYTHONUNBUFFERED=1"),
		StopTimeout: a.cfg.Bot.StopTimeout,
		ErrorMarker: a.cfg.Bot.ErrorMarker,
		Sink:        a.hub,
		Runs:        recorder,
	})
	a.bot.SetExitCallback(a.onBotExit)

	a.server = gateway.NewServer(a.cfg, a.hub, a, runs, a.opts.Version)
	if err := a.server.Listen(); err != nil {
		return err
	}

	layout := a.reconciler.Layout()
	watcher, err := gateway.NewWatcher(a.hub, filepath.Dir(layout.ConfigPath()), filepath.Dir(layout.UserDataPath()))
	if err != nil {
		a.logger.Warn().Err(err).Msg("Config watcher unavailable")
	} else if err := watcher.Start(); err == nil {
		a.server.SetWatcher(watcher)
	}

	if err := a.startControl(); err != nil {
		return err
	}

	go func() {
		a.serveErr <- a.server.Serve()
	}()

	a.showLogin()
	a.logger.Info().Str("url", a.server.URL()).Msg("Shell ready")

	if a.opts.OpenBrowser {
		if err := openBrowser(a.server.URL()); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to open browser")
		}
	}
	return nil
}

// run starts the shell and blocks until ctx is done, a quit is requested or
// the gateway fails.
func (a *App) run(ctx context.Context) error {
	err := a.startup(ctx)
	if err == nil {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Interrupted")
		case <-a.quit:
			a.logger.Info().Msg("Quit requested")
		case err = <-a.serveErr:
			if err == nil {
				err = errors.New("gateway stopped unexpectedly")
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*a.cfg.Bot.StopTimeout+5*time.Second)
	defer cancel()
	a.shutdown(shutdownCtx)
	return err
}

// shutdown stops the bot and releases everything. Closing the shell always
// takes the bot down with it.
func (a *App) shutdown(ctx context.Context) {
	a.shutdownOnce.Do(func() {
		a.logger.Info().Msg("Shell shutting down")

		a.mu.Lock()
		a.closing = true
		a.mu.Unlock()

		if a.bot != nil && a.bot.IsRunning() {
			a.logData("Killing Python process...")
			_ = a.bot.Stop()
		}

		if a.control != nil {
			if err := a.control.Stop(); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to stop control socket")
			}
		}

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to stop gateway")
			}
		} else if a.hub != nil {
			a.hub.Close()
		}

		if a.pruner != nil {
			select {
			case <-a.pruner.Stop().Done():
			case <-ctx.Done():
			}
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to close storage")
			}
		}

		a.logger.Info().Msg("Shell shutdown complete")
	})
}

// Quit asks run to shut the shell down. It does not block.
func (a *App) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// StartBot reconciles the bot config from the login form and spawns the bot.
// The started flag is taken before any work so concurrent logins cannot spawn
// two bots; a failed start releases it and returns the UI to the login page.
func (a *App) StartBot(req botconfig.StartRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.started || a.closing {
		a.mu.Unlock()
		return handlers.ErrAlreadyRunning
	}
	a.started = true
	a.runID = uuid.New().String()
	runID := a.runID
	a.mu.Unlock()

	a.logData("Starting Python process...")
	a.hub.ShowPage(websocket.PageIndex)
	a.logData("Bot path: " + a.cfg.BotDir())
	a.logData(a.bot.CommandLine())

	res, err := a.reconciler.Reconcile(req)
	if err != nil {
		a.failStart(err)
		return fmt.Errorf("reconcile bot config: %w", err)
	}
	for _, path := range res.InstalledExamples {
		a.logData("Created " + path + " from example")
	}

	info := backend.RunInfo{
		ID:          runID,
		Username:    res.Username,
		AuthService: req.Auth,
		Location:    req.Location,
	}
	if err := a.bot.Start(context.Background(), info); err != nil {
		a.failStart(err)
		if errors.Is(err, backend.ErrAlreadyRunning) {
			return handlers.ErrAlreadyRunning
		}
		return err
	}

	status := a.bot.GetStatus()
	backend.LogServiceStatus(status.Running, status.PID)
	if status.Running {
		a.hub.Status(true)
	}
	return nil
}

func (a *App) failStart(err error) {
	a.mu.Lock()
	a.started = false
	a.runID = ""
	a.mu.Unlock()

	a.logger.Error().Err(err).Msg("Bot start failed")
	a.logData("Failed to start bot: " + err.Error())
	a.hub.ShowPage(websocket.PageLogin)
}

// Logout stops the bot if one is running. The login page comes back through
// the exit callback, which has run by the time Logout returns.
func (a *App) Logout() error {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()

	if started || a.bot.IsRunning() {
		a.logData("Killing Python process...")
		return a.bot.Stop()
	}
	return nil
}

// onBotExit runs once per child after its output has been drained. Exits of
// a child other than the current run only update the log.
func (a *App) onBotExit(exit backend.ExitInfo) {
	a.mu.Lock()
	current := exit.RunID == a.runID
	if current {
		a.started = false
		a.runID = ""
	}
	closing := a.closing
	a.mu.Unlock()

	backend.LogServiceStatus(false, exit.PID)
	if !current {
		a.logger.Warn().Str("run_id", exit.RunID).Msg("Ignoring exit of a previous bot run")
		return
	}
	a.hub.Status(false)
	if !exit.Requested && exit.ExitCode != 0 {
		a.logData(fmt.Sprintf("Bot exited with code %d", exit.ExitCode))
	}
	if !closing {
		a.showLogin()
	}
}

// Status implements handlers.Controller.
func (a *App) Status() handlers.BotStatus {
	s := a.bot.GetStatus()
	status := handlers.BotStatus{
		Running:  s.Running,
		PID:      s.PID,
		RunID:    s.RunID,
		Username: s.Username,
		BotDir:   s.Dir,
	}
	if s.Running {
		status.StartedAt = &s.StartedAt
	}
	return status
}

func (a *App) showLogin() {
	a.hub.ShowPage(websocket.PageLogin)
}

// logData logs a shell message and relays it to the UI.
func (a *App) logData(msg string) {
	a.logger.Info().Msg(msg)
	a.hub.AppLog(msg)
}

// startControl opens the local control socket used by the CLI.
func (a *App) startControl() error {
	path := a.opts.SocketPath
	if path == "" {
		var err error
		if path, err = ipc.DefaultSocketPath(); err != nil {
			return err
		}
	}

	a.control = ipc.NewServer(path)
	a.control.Handle(ipc.MsgStartBot, ipc.HandlerFunc(a.handleStartBot))
	a.control.Handle(ipc.MsgLogout, ipc.HandlerFunc(func(*ipc.Message) (any, error) {
		backend.LogControlCommand(string(ipc.MsgLogout))
		if err := a.Logout(); err != nil {
			return nil, err
		}
		return a.controlStatus(), nil
	}))
	a.control.Handle(ipc.MsgGetStatus, ipc.HandlerFunc(func(*ipc.Message) (any, error) {
		return a.controlStatus(), nil
	}))
	a.control.Handle(ipc.MsgShowLogin, ipc.HandlerFunc(func(*ipc.Message) (any, error) {
		backend.LogControlCommand(string(ipc.MsgShowLogin))
		a.showLogin()
		return nil, nil
	}))
	a.control.Handle(ipc.MsgQuit, ipc.HandlerFunc(func(*ipc.Message) (any, error) {
		backend.LogControlCommand(string(ipc.MsgQuit))
		a.Quit()
		return nil, nil
	}))

	if err := a.control.Start(); err != nil {
		a.control = nil
		return err
	}
	return nil
}

func (a *App) handleStartBot(msg *ipc.Message) (any, error) {
	backend.LogControlCommand(string(ipc.MsgStartBot))

	var req botconfig.StartRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, ipc.NewError(ipc.CodeInvalidPayload, err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, ipc.NewError(ipc.CodeInvalidPayload, err.Error())
	}
	if err := a.StartBot(req); err != nil {
		if errors.Is(err, handlers.ErrAlreadyRunning) {
			return nil, ipc.NewError(ipc.CodeAlreadyRunning, err.Error())
		}
		return nil, err
	}
	return a.controlStatus(), nil
}

func (a *App) controlStatus() *ipc.StatusPayload {
	s := a.bot.GetStatus()
	return &ipc.StatusPayload{
		Running:   s.Running,
		PID:       s.PID,
		RunID:     s.RunID,
		Username:  s.Username,
		StartedAt: s.StartedAt,
		BotDir:    s.Dir,
		UIURL:     a.server.URL(),
	}
}

// openBrowser opens a URL in the default browser across different platforms.
func openBrowser(urlStr string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", urlStr)
	case "windows":
		// Use rundll32 which handles URLs more reliably than cmd /c start
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", urlStr)
	default: // linux, freebsd, etc.
		cmd = exec.Command("xdg-open", urlStr)
	}
	return cmd.Start()
}
