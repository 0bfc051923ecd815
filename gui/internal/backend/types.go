// Package backend supervises the bot child process.
package backend

import (
	"time"

	"gofshell/internal/storage"
)

// ServiceStatus represents the bot process status.
type ServiceStatus struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Command   string    `json:"command"`
	Dir       string    `json:"dir"`
}

// RunInfo labels a spawn in the run history.
type RunInfo struct {
	// ID becomes the run ID. A new one is generated when empty.
	ID          string
	Username    string
	AuthService string
	Location    string
}

// ExitInfo describes how a child ended.
type ExitInfo struct {
	RunID    string
	PID      int
	ExitCode int
	Err      error
	// Requested is true when the exit followed a Stop call.
	Requested bool
	Duration  time.Duration
	LogLines  int
	Alerts    int
}

// LogSink receives everything the UI should see about the child.
type LogSink interface {
	AppLog(text string)
	BotLog(runID, stream, text string)
	Alert(runID, text string)
}

// RunRecorder persists run history.
type RunRecorder interface {
	CreateRun(r *storage.Run) error
	FinishRun(id string, exit storage.RunExit) error
}

type nopSink struct{}

func (nopSink) AppLog(string)                 {}
func (nopSink) BotLog(string, string, string) {}
func (nopSink) Alert(string, string)          {}
