package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gofshell/internal/botconfig"
	"gofshell/internal/config"
	"gofshell/internal/ipc"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// DefaultPythonConstraint is the interpreter range gofbot runs on.
const DefaultPythonConstraint = ">= 2.7, < 3.0"

const pythonProbeTimeout = 10 * time.Second

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	var constraint string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the installation",
		Long: `Run diagnostic checks on your gofshell installation.

This command checks:
- Configuration file validity
- Python interpreter and version
- Bot directory and entry script
- Bot config files or their bundled templates
- Data directory
- Gateway port and running shell`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			d := &doctor{
				cfg:        cliCtx.Config,
				configPath: cliCtx.ConfigPath,
				constraint: constraint,
				control:    cliCtx,
			}
			d.run(cmd.Context(), cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&constraint, "python-constraint", DefaultPythonConstraint, "accepted python versions")

	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

type controller interface {
	Control(ctx context.Context, msgType ipc.MessageType, payload, out any) error
}

type doctor struct {
	cfg        *config.Config
	configPath string
	constraint string
	control    controller
}

func (d *doctor) run(ctx context.Context, out io.Writer) {
	fmt.Fprintln(out, "gofshell Doctor")
	fmt.Fprintln(out, "===============")
	fmt.Fprintln(out)

	results := []checkResult{
		checkSystemInfo(),
		checkConfigFile(d.configPath),
		checkPython(ctx, d.cfg.PythonCommand(), d.constraint),
		checkBotDir(d.cfg),
	}
	results = append(results, checkBotFiles(d.cfg.BotDir())...)
	results = append(results,
		checkDataDirectory(d.cfg.Storage.Path),
		d.checkShell(ctx),
	)

	hasErrors, hasWarnings := printResults(out, results)

	// Summary
	fmt.Fprintln(out)
	switch {
	case hasErrors:
		fmt.Fprintln(out, "Some checks failed. Please address the issues above.")
	case hasWarnings:
		fmt.Fprintln(out, "Some warnings detected. The bot should start but may have issues.")
	default:
		fmt.Fprintln(out, "All checks passed! gofshell is ready to use.")
	}
}

func printResults(out io.Writer, results []checkResult) (hasErrors, hasWarnings bool) {
	for _, r := range results {
		icon := "✓"
		switch r.status {
		case "warning":
			icon = "!"
			hasWarnings = true
		case "error":
			icon = "✗"
			hasErrors = true
		}
		fmt.Fprintf(out, "%s %s: %s\n", icon, r.name, r.message)
	}
	return hasErrors, hasWarnings
}

func checkSystemInfo() checkResult {
	return checkResult{
		name:   "System",
		status: "ok",
		message: fmt.Sprintf("Go %s on %s/%s",
			runtime.Version(),
			runtime.GOOS,
			runtime.GOARCH,
		),
	}
}

func checkConfigFile(configPath string) checkResult {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return checkResult{
			name:    "Config File",
			status:  "warning",
			message: fmt.Sprintf("Not found: %s (using defaults, written on first gui run)", configPath),
		}
	}
	return checkResult{
		name:    "Config File",
		status:  "ok",
		message: fmt.Sprintf("Found: %s", configPath),
	}
}

var pythonVersionRe = regexp.MustCompile(`Python\s+(\d+\.\d+(?:\.\d+)?)`)

// parsePythonVersion extracts the version from `python --version` output.
// Python 2 prints it on stderr, so callers pass the combined output.
func parsePythonVersion(output string) (*semver.Version, error) {
	m := pythonVersionRe.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("unrecognized version output %q", strings.TrimSpace(output))
	}
	return semver.NewVersion(m[1])
}

func checkPython(ctx context.Context, python, constraint string) checkResult {
	const name = "Python"

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return checkResult{name: name, status: "error", message: fmt.Sprintf("Invalid constraint %q: %v", constraint, err)}
	}

	ctx, cancel := context.WithTimeout(ctx, pythonProbeTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, python, "--version").CombinedOutput()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
			return checkResult{name: name, status: "error", message: fmt.Sprintf("Not found: %s", python)}
		}
		return checkResult{name: name, status: "error", message: fmt.Sprintf("%s --version failed: %v", python, err)}
	}

	v, err := parsePythonVersion(string(output))
	if err != nil {
		return checkResult{name: name, status: "warning", message: err.Error()}
	}
	if !c.Check(v) {
		return checkResult{
			name:    name,
			status:  "warning",
			message: fmt.Sprintf("%s is %s, gofbot expects %s", python, v, constraint),
		}
	}
	return checkResult{name: name, status: "ok", message: fmt.Sprintf("%s %s", python, v)}
}

func checkBotDir(cfg *config.Config) checkResult {
	const name = "Bot Directory"

	dir := cfg.BotDir()
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return checkResult{name: name, status: "error", message: fmt.Sprintf("Not found: %s", dir)}
	}

	script := cfg.Bot.Script
	if !filepath.IsAbs(script) {
		script = filepath.Join(dir, script)
	}
	if _, err := os.Stat(script); err != nil {
		return checkResult{name: name, status: "error", message: fmt.Sprintf("Entry script missing: %s", script)}
	}
	return checkResult{name: name, status: "ok", message: dir}
}

// checkBotFiles reports on each file the reconciler needs: either the file
// itself or its bundled template must be present.
func checkBotFiles(botDir string) []checkResult {
	layout := botconfig.Layout{BotDir: botDir}
	return []checkResult{
		checkBotFile("Bot Config", layout.ConfigPath(), validateConfigJSON),
		checkBotFile("User Data", layout.UserDataPath(), botconfig.ValidateUserData),
	}
}

func validateConfigJSON(data []byte) error {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return errors.New("not a JSON object")
	}
	return nil
}

func checkBotFile(name, path string, validate func([]byte) error) checkResult {
	data, err := os.ReadFile(path)
	if err == nil {
		if err := validate(data); err != nil {
			return checkResult{name: name, status: "error", message: fmt.Sprintf("%s: %v", path, err)}
		}
		return checkResult{name: name, status: "ok", message: path}
	}

	example := botconfig.ExamplePath(path)
	if _, err := os.Stat(example); err == nil {
		return checkResult{name: name, status: "ok", message: fmt.Sprintf("Will be created from %s", filepath.Base(example))}
	}
	return checkResult{name: name, status: "error", message: fmt.Sprintf("Neither %s nor its template exists", path)}
}

func checkDataDirectory(dbPath string) checkResult {
	const name = "Data Directory"

	dir := filepath.Dir(dbPath)

	// Check if directory exists
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return checkResult{name: name, status: "warning", message: fmt.Sprintf("Will be created: %s", dir)}
	}

	// Check if we can write to it
	testFile := filepath.Join(dir, ".gofshell-test")
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		return checkResult{name: name, status: "error", message: fmt.Sprintf("Cannot write to: %s", dir)}
	}
	os.Remove(testFile)

	if info, err := os.Stat(dbPath); err == nil {
		sizeKB := float64(info.Size()) / 1024
		return checkResult{name: name, status: "ok", message: fmt.Sprintf("Found: %s (run history: %.1f KB)", dir, sizeKB)}
	}
	return checkResult{name: name, status: "ok", message: fmt.Sprintf("Ready: %s (run history will be created on first run)", dir)}
}

// checkShell asks a running shell for its status. Without one, it checks
// that the gateway port is free for the next start.
func (d *doctor) checkShell(ctx context.Context) checkResult {
	const name = "Shell"

	var status ipc.StatusPayload
	err := d.control.Control(ctx, ipc.MsgGetStatus, nil, &status)
	if err == nil {
		state := "bot stopped"
		if status.Running {
			state = fmt.Sprintf("bot running as %s (pid %d)", status.Username, status.PID)
		}
		return checkResult{name: name, status: "ok", message: fmt.Sprintf("Running at %s, %s", status.UIURL, state)}
	}
	if !errors.Is(err, ErrShellNotRunning) {
		return checkResult{name: name, status: "warning", message: fmt.Sprintf("Control socket error: %v", err)}
	}

	ln, err := net.Listen("tcp", d.cfg.Addr())
	if err != nil {
		return checkResult{name: name, status: "warning", message: fmt.Sprintf("Not running, but %s is in use", d.cfg.Addr())}
	}
	ln.Close()
	return checkResult{name: name, status: "ok", message: fmt.Sprintf("Not running (%s is free)", d.cfg.Addr())}
}
