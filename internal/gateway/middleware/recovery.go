package middleware

import (
	"net/http"
	"runtime/debug"

	"gofshell/internal/gateway/handlers"
	"gofshell/pkg/logger"
)

// Recovery returns a middleware that turns a handler panic into a 500 so one
// bad request cannot take down the shell and its bot.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			logger.Error().
				Str("component", "http").
				Interface("error", err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			handlers.SendError(
				w,
				http.StatusInternalServerError,
				handlers.ErrCodeInternalError,
				"internal server error",
			)
		}()

		next.ServeHTTP(w, r)
	})
}
