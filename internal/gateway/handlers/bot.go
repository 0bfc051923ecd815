package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gofshell/internal/botconfig"
	"gofshell/internal/storage"
)

// ErrAlreadyRunning is returned by a Controller asked to start a second bot.
var ErrAlreadyRunning = errors.New("bot is already running")

// Run list limits.
const (
	DefaultRunLimit = 20
	MaxRunLimit     = 500
)

// BotStatus is the supervised bot's state as reported over HTTP.
type BotStatus struct {
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	RunID     string     `json:"run_id,omitempty"`
	Username  string     `json:"username,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	BotDir    string     `json:"bot_dir"`
}

// Controller drives the bot on behalf of the UI.
type Controller interface {
	StartBot(req botconfig.StartRequest) error
	Logout() error
	Status() BotStatus
}

// RunStore is the read side of the run history.
type RunStore interface {
	ListRuns(limit int) ([]*storage.Run, error)
	GetRun(id string) (*storage.Run, error)
}

// BotHandler handles bot lifecycle and run history endpoints.
type BotHandler struct {
	ctrl Controller
	runs RunStore
}

// NewBotHandler creates a bot handler. runs may be nil when history is
// disabled.
func NewBotHandler(ctrl Controller, runs RunStore) *BotHandler {
	return &BotHandler{
		ctrl: ctrl,
		runs: runs,
	}
}

// RegisterRoutes registers bot routes on the router.
func (h *BotHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/api/v1").Subrouter()

	sub.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	sub.HandleFunc("/bot/start", h.HandleStart).Methods(http.MethodPost)
	sub.HandleFunc("/bot/logout", h.HandleLogout).Methods(http.MethodPost)
	sub.HandleFunc("/runs", h.HandleListRuns).Methods(http.MethodGet)
	sub.HandleFunc("/runs/{id}", h.HandleGetRun).Methods(http.MethodGet)
}

// HandleStatus returns the bot status.
func (h *BotHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, h.ctrl.Status())
}

// HandleStart reconciles the bot config from the login form and spawns the bot.
func (h *BotHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req botconfig.StartRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if err := h.ctrl.StartBot(req); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			SendError(w, http.StatusConflict, ErrCodeAlreadyRunning, err.Error())
		case isRequestError(err):
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		default:
			SendError(w, http.StatusInternalServerError, ErrCodeStartFailed, err.Error())
		}
		return
	}

	SendJSON(w, http.StatusAccepted, h.ctrl.Status())
}

// HandleLogout stops the bot. Logging out with no bot running is not an error.
func (h *BotHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Logout(); err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeLogoutFailed, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, h.ctrl.Status())
}

// HandleListRuns returns recent runs, newest first.
func (h *BotHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "run history not available")
		return
	}

	limit := DefaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxRunLimit)
	}

	runs, err := h.runs.ListRuns(limit)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// HandleGetRun returns a single run.
func (h *BotHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "run history not available")
		return
	}

	run, err := h.runs.GetRun(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			SendError(w, http.StatusNotFound, ErrCodeNotFound, "run not found")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	SendJSON(w, http.StatusOK, run)
}

func isRequestError(err error) bool {
	var walkErr *botconfig.WalkSpeedError
	return errors.As(err, &walkErr) ||
		errors.Is(err, botconfig.ErrUnknownAuth) ||
		errors.Is(err, botconfig.ErrMissingUsername) ||
		errors.Is(err, botconfig.ErrInvalidUsername)
}
