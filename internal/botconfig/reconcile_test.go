package botconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const exampleConfig = `{
    "auth_service": "google",
    "username": "YOUR_USERNAME",
    "password": "YOUR_PASSWORD",
    "location": "SOME_LOCATION",
    "gmapkey": "GOOGLE_MAPS_API_KEY",
    "walk": 4.16,
    "tasks": [
        {
            "type": "HandleSoftBan"
        },
        {
            "type": "CatchPokemon",
            "config": {"enabled": true}
        }
    ],
    "debug": false
}`

func newBotDir(t *testing.T, config string, withUserData bool) string {
	t.Helper()
	dir := t.TempDir()
	layout := Layout{BotDir: dir}

	require.NoError(t, os.MkdirAll(filepath.Dir(layout.ConfigPath()), 0755))
	require.NoError(t, os.MkdirAll(filepath.Dir(layout.UserDataPath()), 0755))
	require.NoError(t, os.WriteFile(ExamplePath(layout.ConfigPath()), []byte(config), 0644))
	if withUserData {
		require.NoError(t, os.WriteFile(ExamplePath(layout.UserDataPath()), []byte("var userInfo = {};"), 0644))
	}
	return dir
}

func googleRequest() StartRequest {
	return StartRequest{
		Auth:     AuthGoogle,
		Location: "40.7580,-73.9855",
		Options: Options{
			GoogleUsername: "trainer@gmail.com",
			GooglePassword: "hunter2",
			PTCUsername:    "ptcuser",
			PTCPassword:    "ptcpass",
			GoogleMapsAPI:  "AIzaKey",
			WalkSpeed:      "12",
		},
	}
}

func TestReconcile_FirstRun(t *testing.T) {
	dir := newBotDir(t, exampleConfig, true)
	r := NewReconciler(dir, zerolog.Nop())

	res, err := r.Reconcile(googleRequest())
	require.NoError(t, err)

	layout := r.Layout()
	assert.Equal(t, "trainer@gmail.com", res.Username)
	assert.Len(t, res.InstalledExamples, 2)
	assert.True(t, res.AddedTitleTask)
	assert.ElementsMatch(t, []string{
		layout.LocationPath("trainer@gmail.com"),
		layout.CatchablePath("trainer@gmail.com"),
	}, res.Seeded)

	_, err = os.Stat(ExamplePath(layout.ConfigPath()))
	assert.True(t, errors.Is(err, os.ErrNotExist), "example should have been renamed")

	raw, err := os.ReadFile(layout.ConfigPath())
	require.NoError(t, err)
	doc := gjson.ParseBytes(raw)
	assert.Equal(t, "google", doc.Get("auth_service").String())
	assert.Equal(t, "trainer@gmail.com", doc.Get("username").String())
	assert.Equal(t, "hunter2", doc.Get("password").String())
	assert.Equal(t, "AIzaKey", doc.Get("gmapkey").String())
	assert.Equal(t, int64(12), doc.Get("walk").Int())
	assert.Equal(t, "40.7580,-73.9855", doc.Get("location").String())
	assert.False(t, doc.Get("debug").Bool())

	tasks := doc.Get("tasks").Array()
	require.Len(t, tasks, 3)
	assert.Equal(t, TitleStatsTask, tasks[0].Get("type").String())
	assert.Equal(t, int64(1), tasks[0].Get("config.min_interval").Int())
	assert.Equal(t, "xp_per_hour", tasks[0].Get("config.stats.5").String())
	assert.True(t, tasks[0].Get("config.terminal_log").Bool())
	assert.False(t, tasks[0].Get("config.terminal_title").Bool())
	assert.Equal(t, "HandleSoftBan", tasks[1].Get("type").String())

	// 4-space indentation, unmanaged keys keep their position
	assert.True(t, strings.HasPrefix(string(raw), "{\n    \"auth_service\""))
	assert.Less(t, strings.Index(string(raw), `"tasks"`), strings.Index(string(raw), `"debug"`))

	userData, err := os.ReadFile(layout.UserDataPath())
	require.NoError(t, err)
	info, err := ParseUserData(userData)
	require.NoError(t, err)
	assert.Equal(t, []string{"trainer@gmail.com"}, info.Users)
	assert.Equal(t, "AIzaKey", info.GMapsAPIKey)

	seed, err := os.ReadFile(layout.LocationPath("trainer@gmail.com"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(seed))
}

func TestReconcile_SecondRunIsStable(t *testing.T) {
	dir := newBotDir(t, exampleConfig, true)
	r := NewReconciler(dir, zerolog.Nop())

	_, err := r.Reconcile(googleRequest())
	require.NoError(t, err)

	locPath := r.Layout().LocationPath("trainer@gmail.com")
	require.NoError(t, os.WriteFile(locPath, []byte(`{"lat":1}`), 0644))

	res, err := r.Reconcile(googleRequest())
	require.NoError(t, err)
	assert.Empty(t, res.InstalledExamples)
	assert.Empty(t, res.Seeded)
	assert.False(t, res.AddedTitleTask)

	raw, err := os.ReadFile(r.Layout().ConfigPath())
	require.NoError(t, err)
	assert.Len(t, gjson.GetBytes(raw, "tasks").Array(), 3)

	loc, err := os.ReadFile(locPath)
	require.NoError(t, err)
	assert.Equal(t, `{"lat":1}`, string(loc), "existing location file must be kept")
}

func TestReconcile_PTCAndEmptyWalk(t *testing.T) {
	dir := newBotDir(t, exampleConfig, true)
	r := NewReconciler(dir, zerolog.Nop())

	req := googleRequest()
	req.Auth = AuthPTC
	req.Options.WalkSpeed = ""

	res, err := r.Reconcile(req)
	require.NoError(t, err)
	assert.Equal(t, "ptcuser", res.Username)

	raw, err := os.ReadFile(r.Layout().ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "ptc", gjson.GetBytes(raw, "auth_service").String())
	assert.Equal(t, "ptcpass", gjson.GetBytes(raw, "password").String())
	assert.Equal(t, 4.16, gjson.GetBytes(raw, "walk").Float(), "empty walk speed keeps existing value")
}

func TestReconcile_MissingTemplate(t *testing.T) {
	dir := newBotDir(t, exampleConfig, false)
	r := NewReconciler(dir, zerolog.Nop())

	_, err := r.Reconcile(googleRequest())
	assert.ErrorIs(t, err, ErrNoTemplate)
}

func TestReconcile_InvalidRequest(t *testing.T) {
	r := NewReconciler(t.TempDir(), zerolog.Nop())

	tests := []struct {
		name   string
		mutate func(*StartRequest)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unknown auth",
			mutate: func(r *StartRequest) { r.Auth = "facebook" },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnknownAuth) },
		},
		{
			name:   "missing username",
			mutate: func(r *StartRequest) { r.Options.GoogleUsername = " " },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMissingUsername) },
		},
		{
			name:   "username escapes web dir",
			mutate: func(r *StartRequest) { r.Options.GoogleUsername = "../../../../tmp/pwn" },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidUsername) },
		},
		{
			name:   "bad walk speed",
			mutate: func(r *StartRequest) { r.Options.WalkSpeed = "fast" },
			check: func(t *testing.T, err error) {
				var walkErr *WalkSpeedError
				require.ErrorAs(t, err, &walkErr)
				assert.Equal(t, "fast", walkErr.Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := googleRequest()
			tt.mutate(&req)
			_, err := r.Reconcile(req)
			tt.check(t, err)
		})
	}
}

func TestApplySettings(t *testing.T) {
	t.Run("not an object", func(t *testing.T) {
		_, _, err := ApplySettings([]byte(`[1,2]`), googleRequest())
		assert.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, _, err := ApplySettings([]byte(`{"a":`), googleRequest())
		assert.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("missing tasks", func(t *testing.T) {
		out, added, err := ApplySettings([]byte(`{}`), googleRequest())
		require.NoError(t, err)
		assert.True(t, added)
		assert.Equal(t, TitleStatsTask, gjson.GetBytes(out, "tasks.0.type").String())
	})

	t.Run("tasks not array", func(t *testing.T) {
		_, _, err := ApplySettings([]byte(`{"tasks":{}}`), googleRequest())
		assert.Error(t, err)
	})

	t.Run("title task already present", func(t *testing.T) {
		in := `{"tasks":[{"type":"CatchPokemon"},{"type":"UpdateTitleStats","config":{"min_interval":5}}]}`
		out, added, err := ApplySettings([]byte(in), googleRequest())
		require.NoError(t, err)
		assert.False(t, added)
		assert.Equal(t, int64(5), gjson.GetBytes(out, "tasks.1.config.min_interval").Int())
	})

	t.Run("html characters kept literal", func(t *testing.T) {
		in := `{"tasks":[{"type":"Note","config":{"text":"a<b&c"}}]}`
		out, _, err := ApplySettings([]byte(in), googleRequest())
		require.NoError(t, err)
		assert.Contains(t, string(out), `"a<b&c"`)
	})
}

func TestStartRequest_ValidateUsername(t *testing.T) {
	tests := []struct {
		user    string
		wantErr bool
	}{
		{"trainer@gmail.com", false},
		{"ash.ketchum", false},
		{"../pwn", true},
		{"..", true},
		{"a/b", true},
		{`a\b`, true},
		{"C:pwn", true},
		{"nul\x00", true},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			req := googleRequest()
			req.Options.GoogleUsername = tt.user
			err := req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUsername)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStartRequest_Credentials(t *testing.T) {
	req := googleRequest()
	user, pass := req.Credentials()
	assert.Equal(t, "trainer@gmail.com", user)
	assert.Equal(t, "hunter2", pass)

	req.Auth = AuthPTC
	user, pass = req.Credentials()
	assert.Equal(t, "ptcuser", user)
	assert.Equal(t, "ptcpass", pass)
}
