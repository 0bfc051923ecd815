package backend

import (
	"github.com/rs/zerolog"

	"gofshell/pkg/logger"
)

// Logger is the backend component logger. It discards until InitLogger runs.
var Logger = zerolog.Nop()

// InitLogger derives the backend logger from the global logger. Call it after
// logger.Init.
func InitLogger() {
	Logger = logger.Component("backend")
}

// LogServiceStatus logs a bot status change.
func LogServiceStatus(running bool, pid int) {
	Logger.Info().Bool("running", running).Int("pid", pid).Msg("Bot status changed")
}

// LogControlCommand logs a control socket command.
func LogControlCommand(action string) {
	Logger.Debug().Str("action", action).Msg("Control command received")
}
