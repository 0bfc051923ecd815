package middleware

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"gofshell/internal/gateway/handlers"
	"gofshell/pkg/logger"
)

// SameOrigin reports whether r comes from the shell's own pages. Requests
// without an Origin header (CLI, curl) pass. Otherwise the origin must match
// the request Host, and that Host must be loopback or an IP literal so a
// rebound DNS name cannot pose as the shell.
func SameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" || !strings.EqualFold(u.Host, r.Host) {
		return false
	}
	host := u.Hostname()
	return strings.EqualFold(host, "localhost") || net.ParseIP(host) != nil
}

// CheckOrigin rejects state-changing requests from foreign origins with a 403.
func CheckOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !SameOrigin(r) {
				logger.Warn().
					Str("component", "http").
					Str("origin", r.Header.Get("Origin")).
					Str("path", r.URL.Path).
					Msg("Rejected cross-origin request")
				handlers.SendError(w, http.StatusForbidden, handlers.ErrCodeForbidden, "cross-origin request rejected")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
