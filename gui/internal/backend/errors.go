package backend

import "errors"

// Error definitions.
var (
	ErrAlreadyRunning = errors.New("bot process is already running")
	ErrNoCommand      = errors.New("bot command is not configured")
	ErrStartFailed    = errors.New("failed to start bot process")
)
