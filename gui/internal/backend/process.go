package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gofshell/internal/storage"
)

const (
	defaultStopTimeout = 5 * time.Second

	// Longest single line relayed from the bot.
	maxLineSize = 1024 * 1024

	// How long output may keep arriving after the child has exited.
	drainTimeout = 500 * time.Millisecond
)

// ProcessConfig configures a BotProcess.
type ProcessConfig struct {
	Command string
	Args    []string
	Dir     string
	// Env replaces the inherited environment when non-nil.
	Env []string

	// StopTimeout is how long Stop waits after the interrupt before killing
	// the process group.
	StopTimeout time.Duration
	// ErrorMarker in a stderr line raises an alert. Empty disables alerts.
	ErrorMarker string

	Sink   LogSink
	Runs   RunRecorder
	Logger *zerolog.Logger
}

// BotProcess manages the lifecycle of the single bot child process.
type BotProcess struct {
	cfg    ProcessConfig
	log    zerolog.Logger
	sink   LogSink
	onExit func(ExitInfo)

	mu        sync.Mutex
	cmd       *exec.Cmd
	running   bool
	stopping  bool
	runID     string
	info      RunInfo
	startedAt time.Time
	exited    chan struct{}
}

// NewBotProcess creates a supervisor for the configured command.
func NewBotProcess(cfg ProcessConfig) *BotProcess {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	log := Logger
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	return &BotProcess{
		cfg:  cfg,
		log:  log.With().Str("component", "bot").Logger(),
		sink: sink,
	}
}

// SetExitCallback sets the function called once after each child exits and
// its output has been drained. Stop returns only after the callback does, so
// the callback must not call Stop.
func (p *BotProcess) SetExitCallback(cb func(ExitInfo)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExit = cb
}

// CommandLine returns the command as it would be typed in a shell.
func (p *BotProcess) CommandLine() string {
	return strings.Join(append([]string{p.cfg.Command}, p.cfg.Args...), " ")
}

// Start spawns the bot in its own process group. ctx only bounds the spawn;
// the child outlives it.
func (p *BotProcess) Start(ctx context.Context, info RunInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}
	if p.cfg.Command == "" {
		return ErrNoCommand
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	cmd.Env = p.cfg.Env
	cmd.SysProcAttr = sysProcAttr()

	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdout, stdoutW)
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)
	if err != nil {
		closeAll(stdout, stderr)
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	runID := info.ID
	if runID == "" {
		runID = uuid.New().String()
	}
	p.cmd = cmd
	p.running = true
	p.stopping = false
	p.runID = runID
	p.info = info
	p.startedAt = time.Now()
	p.exited = make(chan struct{})

	pid := cmd.Process.Pid
	p.log.Info().Str("run_id", runID).Int("pid", pid).Str("dir", cmd.Dir).Str("command", p.CommandLine()).Msg("Bot started")

	if p.cfg.Runs != nil {
		run := &storage.Run{
			ID:          runID,
			Username:    info.Username,
			AuthService: info.AuthService,
			Location:    info.Location,
			Command:     p.CommandLine(),
			PID:         pid,
			StartedAt:   p.startedAt,
		}
		if err := p.cfg.Runs.CreateRun(run); err != nil {
			p.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run")
		}
	}

	counters := &outputCounters{}
	var drained sync.WaitGroup
	drained.Add(2)
	go p.relay(&drained, stdout, runID, "stdout", counters)
	go p.relay(&drained, stderr, runID, "stderr", counters)
	go p.monitor(cmd, runID, p.startedAt, &drained, counters, p.exited, stdout, stderr)

	return nil
}

type outputCounters struct {
	lines  atomic.Int64
	alerts atomic.Int64
}

// relay forwards one output stream line by line until EOF.
func (p *BotProcess) relay(wg *sync.WaitGroup, r io.Reader, runID, stream string, c *outputCounters) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		c.lines.Add(1)
		p.log.Debug().Str("stream", stream).Msg(line)
		p.sink.BotLog(runID, stream, line)

		if stream == "stderr" && p.cfg.ErrorMarker != "" && strings.Contains(line, p.cfg.ErrorMarker) {
			c.alerts.Add(1)
			p.sink.Alert(runID, line)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		p.log.Warn().Err(err).Str("stream", stream).Msg("Bot output read failed")
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// monitor waits for the child, then reports its exit exactly once. Output
// still buffered in the pipes gets drainTimeout to reach the sink; a
// background process that inherited the pipes does not hold up the exit.
func (p *BotProcess) monitor(cmd *exec.Cmd, runID string, startedAt time.Time, drained *sync.WaitGroup, c *outputCounters, exited chan struct{}, pipes ...*os.File) {
	waitErr := cmd.Wait()

	done := make(chan struct{})
	go func() {
		drained.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.log.Debug().Str("run_id", runID).Msg("Bot output still open after exit, closing pipes")
	}
	closeAll(pipes...)
	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.log.Warn().Str("run_id", runID).Msg("Bot output readers did not stop")
	}

	exit := ExitInfo{
		RunID:    runID,
		PID:      cmd.Process.Pid,
		ExitCode: -1,
		Duration: time.Since(startedAt),
		LogLines: int(c.lines.Load()),
		Alerts:   int(c.alerts.Load()),
	}
	if cmd.ProcessState != nil {
		exit.ExitCode = cmd.ProcessState.ExitCode()
	}
	// A plain non-zero status is carried by ExitCode alone; signals and wait
	// failures keep the error.
	var exitErr *exec.ExitError
	if waitErr != nil && (exit.ExitCode == -1 || !errors.As(waitErr, &exitErr)) {
		exit.Err = waitErr
	}

	p.mu.Lock()
	exit.Requested = p.stopping
	p.running = false
	p.stopping = false
	p.cmd = nil
	callback := p.onExit
	p.mu.Unlock()
	// Stop and Wait return only once the callback has seen the exit.
	defer close(exited)

	event := p.log.Info()
	if exit.Err != nil {
		event = event.AnErr("exit_error", exit.Err)
	}
	event.Str("run_id", runID).Int("exit_code", exit.ExitCode).Bool("requested", exit.Requested).
		Dur("uptime", exit.Duration).Msg("Bot exited")

	if p.cfg.Runs != nil {
		record := storage.RunExit{
			EndedAt:  time.Now(),
			ExitCode: exit.ExitCode,
			LogLines: exit.LogLines,
			Alerts:   exit.Alerts,
		}
		if exit.Err != nil {
			record.Error = exit.Err.Error()
		}
		if err := p.cfg.Runs.FinishRun(runID, record); err != nil {
			p.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to finish run record")
		}
	}

	p.sink.AppLog("Bot exited")

	if callback != nil {
		callback(exit)
	}
}

// Stop interrupts the bot's process group, escalating to a kill after the
// stop timeout. Signal failures are logged and swallowed; the bot may already
// be gone.
func (p *BotProcess) Stop() error {
	p.mu.Lock()
	if !p.running || p.cmd == nil || p.cmd.Process == nil {
		p.mu.Unlock()
		return nil
	}
	pid := p.cmd.Process.Pid
	exited := p.exited
	p.stopping = true
	p.mu.Unlock()

	if err := interruptGroup(pid); err != nil {
		p.log.Debug().Err(err).Int("pid", pid).Msg("Interrupt failed")
	}

	select {
	case <-exited:
		return nil
	case <-time.After(p.cfg.StopTimeout):
	}

	p.log.Warn().Int("pid", pid).Dur("timeout", p.cfg.StopTimeout).Msg("Bot ignored interrupt, killing process group")
	if err := killGroup(pid); err != nil {
		p.log.Debug().Err(err).Int("pid", pid).Msg("Kill failed")
	}

	select {
	case <-exited:
	case <-time.After(p.cfg.StopTimeout):
		p.log.Error().Int("pid", pid).Msg("Bot did not exit after kill")
	}
	return nil
}

// Wait blocks until the current child has exited or ctx is done. It returns
// immediately when nothing is running.
func (p *BotProcess) Wait(ctx context.Context) error {
	p.mu.Lock()
	exited := p.exited
	running := p.running
	p.mu.Unlock()

	if !running || exited == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether a child is live.
func (p *BotProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// GetStatus returns the bot status.
func (p *BotProcess) GetStatus() *ServiceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := &ServiceStatus{
		Running: p.running,
		Command: p.CommandLine(),
		Dir:     p.cfg.Dir,
	}
	if p.running && p.cmd != nil && p.cmd.Process != nil {
		status.PID = p.cmd.Process.Pid
		status.RunID = p.runID
		status.Username = p.info.Username
		status.StartedAt = p.startedAt
	}
	return status
}
