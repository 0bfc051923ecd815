//go:build !windows

package cli

import (
	"sync"
	"testing"
	"time"

	"gofshell/internal/botconfig"
	"gofshell/internal/ipc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startControlServer(t *testing.T, env *testEnv) *ipc.Server {
	t.Helper()
	s := ipc.NewServer(env.socketPath)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestStatusShellNotRunning(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Shell: not running")

	_, err = env.execute(t, "", "status", "--json")
	assert.ErrorIs(t, err, ErrShellNotRunning)
}

func TestStatusRunning(t *testing.T) {
	env := newTestEnv(t)
	s := startControlServer(t, env)
	s.Handle(ipc.MsgGetStatus, ipc.HandlerFunc(func(*ipc.Message) (any, error) {
		return &ipc.StatusPayload{
			Running:   true,
			PID:       4242,
			RunID:     "run-1",
			Username:  "ash",
			StartedAt: time.Now().Add(-time.Minute),
			BotDir:    "/opt/gofbot",
			UIURL:     "http://127.0.0.1:18790/",
		}, nil
	}))

	out, err := env.execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Bot: running")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "ash")

	out, err = env.execute(t, "", "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "run-1"`)
}

func TestStartSendsRequest(t *testing.T) {
	env := newTestEnv(t)
	s := startControlServer(t, env)

	var got botconfig.StartRequest
	s.Handle(ipc.MsgStartBot, ipc.HandlerFunc(func(msg *ipc.Message) (any, error) {
		if err := msg.ParsePayload(&got); err != nil {
			return nil, err
		}
		return &ipc.StatusPayload{Running: true, PID: 7, Username: "ash"}, nil
	}))

	out, err := env.execute(t, "secret\n", "start", "--auth", "google", "--user", "ash@example.com",
		"--location", "Pallet Town", "--walk", "5", "--gmapkey", "KEY", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Bot started for ash (pid 7)")

	assert.Equal(t, botconfig.AuthGoogle, got.Auth)
	assert.Equal(t, "ash@example.com", got.Options.GoogleUsername)
	assert.Equal(t, "secret", got.Options.GooglePassword)
	assert.Equal(t, "Pallet Town", got.Location)
	assert.Equal(t, "5", got.Options.WalkSpeed)
	assert.Equal(t, "KEY", got.Options.GoogleMapsAPI)
}

func TestStartAlreadyRunning(t *testing.T) {
	env := newTestEnv(t)
	s := startControlServer(t, env)
	s.Handle(ipc.MsgStartBot, ipc.HandlerFunc(func(*ipc.Message) (any, error) {
		return nil, ipc.NewError(ipc.CodeAlreadyRunning, "bot is already running")
	}))

	_, err := env.execute(t, "pw\n", "start", "--user", "ash", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gofshell logout")
}

func TestStartRejectsBadWalkSpeed(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "pw\n", "start", "--user", "ash", "--walk", "fast", "--password-stdin")
	require.Error(t, err)
	var walkErr *botconfig.WalkSpeedError
	assert.ErrorAs(t, err, &walkErr)
}

func TestLogoutAndQuit(t *testing.T) {
	env := newTestEnv(t)
	s := startControlServer(t, env)

	var (
		mu    sync.Mutex
		calls []ipc.MessageType
	)
	record := func(msg *ipc.Message) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, msg.Type)
		return &ipc.StatusPayload{}, nil
	}
	s.Handle(ipc.MsgLogout, ipc.HandlerFunc(record))
	s.Handle(ipc.MsgQuit, ipc.HandlerFunc(record))

	out, err := env.execute(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, err = env.execute(t, "", "quit")
	require.NoError(t, err)
	assert.Contains(t, out, "shutting down")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ipc.MessageType{ipc.MsgLogout, ipc.MsgQuit}, calls)
}

func TestLogoutShellNotRunning(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "", "logout")
	assert.ErrorIs(t, err, ErrShellNotRunning)
}
