package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	assert.Equal(t, "gofbot", cfg.Bot.Dir)
	assert.Equal(t, "./pokecli.py", cfg.Bot.Script)
	assert.Equal(t, 5*time.Second, cfg.Bot.StopTimeout)
	assert.Equal(t, "ERROR", cfg.Bot.ErrorMarker)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "@daily", cfg.History.PruneSchedule)
	assert.Equal(t, DefaultRetention, cfg.History.Retention)

	// 依赖运行环境的默认值
	assert.True(t, filepath.IsAbs(cfg.App.Root))
	assert.NotEmpty(t, cfg.Storage.Path)
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	root := t.TempDir()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  root: ` + root + `
bot:
  python: /usr/bin/python2
  stop_timeout: 2s
gateway:
  port: 9000
log:
  level: debug
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Bot.StopTimeout)
	assert.Equal(t, "/usr/bin/python2", cfg.PythonCommand())
	assert.Equal(t, filepath.Join(root, "gofbot"), cfg.BotDir())
	assert.Equal(t, filepath.Join(root, "pages"), cfg.PagesDir())
	assert.Equal(t, configFile, ConfigPath())

	// 未在文件中指定的值使用默认值
	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("GOFSHELL_GATEWAY_PORT", "7777")
	t.Setenv("GOFSHELL_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Gateway.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	Reset()
	defer Reset()

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("gateway: [unclosed"), 0644))

	_, err := Load(configFile)
	assert.Error(t, err)
}

func TestPythonFor(t *testing.T) {
	cfg := &Config{App: AppConfig{Root: "/opt/gofshell"}}

	assert.Equal(t, "python", cfg.pythonFor("linux"))
	assert.Equal(t, "python", cfg.pythonFor("darwin"))
	assert.Equal(t, filepath.Join("/opt/gofshell", "pywin", "python.exe"), cfg.pythonFor("windows"))

	cfg.Bot.Python = "python3"
	assert.Equal(t, "python3", cfg.pythonFor("windows"))
}

func TestBotDir_Absolute(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "bot")
	cfg := &Config{App: AppConfig{Root: "/opt/gofshell"}, Bot: BotConfig{Dir: abs}}
	assert.Equal(t, abs, cfg.BotDir())
}

func TestWriteDefault(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	created, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, created, "existing file must not be rewritten")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
	assert.Equal(t, DefaultStopTimeout, cfg.Bot.StopTimeout)
	assert.Equal(t, DefaultRetention, cfg.History.Retention)
}
