package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gofshell/internal/config"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	root       string
	configPath string
	socketPath string
	dbPath     string
}

// newTestEnv writes a config that keeps every path inside a temp dir.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)

	root := t.TempDir()
	env := &testEnv{
		root:       root,
		configPath: filepath.Join(root, "config.yaml"),
		dbPath:     filepath.Join(root, "data", "runs.db"),
	}

	sockDir, err := os.MkdirTemp("", "gofcli")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })
	env.socketPath = filepath.Join(sockDir, "gui.sock")

	yml := fmt.Sprintf("app:\n  root: %q\nstorage:\n  path: %q\nlog:\n  level: error\n  format: json\ngateway:\n  port: 0\n",
		root, env.dbPath)
	require.NoError(t, os.WriteFile(env.configPath, []byte(yml), 0644))
	return env
}

// execute runs the root command with the env's config and socket.
func (e *testEnv) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath, "--socket", e.socketPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
