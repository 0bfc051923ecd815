// Package botconfig reconciles the supervised bot's on-disk configuration with
// the credentials and options entered in the shell's login page.
package botconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Auth services understood by the bot.
const (
	AuthGoogle = "google"
	AuthPTC    = "ptc"
)

// TitleStatsTask is the worker type the shell relies on for periodic stats
// lines in the bot log.
const TitleStatsTask = "UpdateTitleStats"

// Options are the free-form login page fields.
type Options struct {
	GoogleUsername string `json:"google_username"`
	GooglePassword string `json:"google_password"`
	PTCUsername    string `json:"ptc_username"`
	PTCPassword    string `json:"ptc_password"`
	GoogleMapsAPI  string `json:"google_maps_api"`
	WalkSpeed      string `json:"walk_speed"`
}

// StartRequest carries everything the login page submits to start the bot.
type StartRequest struct {
	Auth     string  `json:"auth"`
	Code     string  `json:"code,omitempty"`
	Location string  `json:"location"`
	Options  Options `json:"opts"`
}

// Credentials returns the username and password for the selected auth
// service. Anything other than google falls back to PTC.
func (r StartRequest) Credentials() (username, password string) {
	if r.Auth == AuthGoogle {
		return r.Options.GoogleUsername, r.Options.GooglePassword
	}
	return r.Options.PTCUsername, r.Options.PTCPassword
}

// Validate checks the request before any file is touched.
func (r StartRequest) Validate() error {
	switch r.Auth {
	case AuthGoogle, AuthPTC:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAuth, r.Auth)
	}
	user, _ := r.Credentials()
	if strings.TrimSpace(user) == "" {
		return ErrMissingUsername
	}
	// The username names the per-user web files.
	if strings.ContainsAny(user, "/\\:\x00") || strings.Contains(user, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, user)
	}
	if _, _, err := parseWalk(r.Options.WalkSpeed); err != nil {
		return err
	}
	return nil
}

// Result describes what Reconcile changed.
type Result struct {
	Username          string
	ConfigPath        string
	UserDataPath      string
	InstalledExamples []string
	Seeded            []string
	AddedTitleTask    bool
}

// Reconciler rewrites the bot configuration for a login.
type Reconciler struct {
	layout Layout
	logger zerolog.Logger
}

// NewReconciler creates a reconciler for the bot rooted at botDir.
func NewReconciler(botDir string, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		layout: Layout{BotDir: botDir},
		logger: logger.With().Str("component", "botconfig").Logger(),
	}
}

// Layout returns the file layout the reconciler writes to.
func (r *Reconciler) Layout() Layout {
	return r.layout
}

// Reconcile installs missing config files from their templates, merges the
// request into config.json, rewrites userdata.js and seeds the per-user web
// map files.
func (r *Reconciler) Reconcile(req StartRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		ConfigPath:   r.layout.ConfigPath(),
		UserDataPath: r.layout.UserDataPath(),
	}

	for _, path := range []string{res.ConfigPath, res.UserDataPath} {
		installed, err := EnsureFromExample(path)
		if err != nil {
			return nil, err
		}
		if installed {
			r.logger.Info().Str("path", path).Msg("Installed config from example")
			res.InstalledExamples = append(res.InstalledExamples, path)
		}
	}

	raw, err := os.ReadFile(res.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read bot config: %w", err)
	}

	doc, added, err := ApplySettings(raw, req)
	if err != nil {
		return nil, err
	}
	res.AddedTitleTask = added
	res.Username, _ = req.Credentials()

	userData := RenderUserData(res.Username, req.Options.GoogleMapsAPI)
	if err := ValidateUserData(userData); err != nil {
		return nil, err
	}
	if err := os.WriteFile(res.UserDataPath, userData, 0644); err != nil {
		return nil, fmt.Errorf("write userdata: %w", err)
	}

	for _, path := range []string{r.layout.LocationPath(res.Username), r.layout.CatchablePath(res.Username)} {
		seeded, err := SeedJSON(path)
		if err != nil {
			return nil, err
		}
		if seeded {
			res.Seeded = append(res.Seeded, path)
		}
	}

	if err := os.WriteFile(res.ConfigPath, doc, 0644); err != nil {
		return nil, fmt.Errorf("write bot config: %w", err)
	}

	r.logger.Info().
		Str("auth", req.Auth).
		Str("username", res.Username).
		Bool("title_task_added", res.AddedTitleTask).
		Msg("Bot config reconciled")

	return res, nil
}

// ApplySettings merges req into the bot config document and returns it
// indented with four spaces. Keys the shell does not manage keep their values
// and order.
func ApplySettings(raw []byte, req StartRequest) ([]byte, bool, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, false, ErrNotObject
	}

	username, password := req.Credentials()
	walk, hasWalk, err := parseWalk(req.Options.WalkSpeed)
	if err != nil {
		return nil, false, err
	}

	doc := raw
	set := func(key string, value any) {
		if err != nil {
			return
		}
		doc, err = sjson.SetBytes(doc, key, value)
	}
	set("auth_service", req.Auth)
	set("password", password)
	set("username", username)
	set("gmapkey", req.Options.GoogleMapsAPI)
	if hasWalk {
		set("walk", walk)
	}
	set("location", req.Location)
	if err != nil {
		return nil, false, fmt.Errorf("update bot config: %w", err)
	}

	doc, added, err := ensureTitleTask(doc)
	if err != nil {
		return nil, false, err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, doc, "", "    "); err != nil {
		return nil, false, fmt.Errorf("format bot config: %w", err)
	}
	return out.Bytes(), added, nil
}

type titleStatsConfig struct {
	MinInterval   int      `json:"min_interval"`
	Stats         []string `json:"stats"`
	TerminalLog   bool     `json:"terminal_log"`
	TerminalTitle bool     `json:"terminal_title"`
}

type task struct {
	Type   string           `json:"type"`
	Config titleStatsConfig `json:"config"`
}

// titleStatsTask is prepended when the config has no UpdateTitleStats worker.
var titleStatsTask = task{
	Type: TitleStatsTask,
	Config: titleStatsConfig{
		MinInterval: 1,
		Stats: []string{
			"login",
			"uptime",
			"km_walked",
			"level_stats",
			"xp_earned",
			"xp_per_hour",
		},
		TerminalLog:   true,
		TerminalTitle: false,
	},
}

func ensureTitleTask(doc []byte) ([]byte, bool, error) {
	tasks := gjson.GetBytes(doc, "tasks")
	if tasks.Exists() && !tasks.IsArray() {
		return nil, false, fmt.Errorf("bot config: tasks is not an array")
	}

	existing := tasks.Array()
	for _, t := range existing {
		if t.Get("type").String() == TitleStatsTask {
			return doc, false, nil
		}
	}

	first, err := marshalRaw(titleStatsTask)
	if err != nil {
		return nil, false, err
	}
	parts := make([]string, 0, len(existing)+1)
	parts = append(parts, string(first))
	for _, t := range existing {
		parts = append(parts, t.Raw)
	}
	merged := "[" + strings.Join(parts, ",") + "]"

	doc, err = sjson.SetRawBytes(doc, "tasks", []byte(merged))
	if err != nil {
		return nil, false, fmt.Errorf("update tasks: %w", err)
	}
	return doc, true, nil
}

// marshalRaw encodes v without HTML escaping.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// parseWalk mirrors the login page contract: an empty walk speed leaves the
// config value alone.
func parseWalk(s string) (int, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, &WalkSpeedError{Value: s}
	}
	return n, true, nil
}
