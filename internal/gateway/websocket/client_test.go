package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofshell/internal/botconfig"
)

type fakeHandler struct {
	mu       sync.Mutex
	started  []botconfig.StartRequest
	logouts  int
	startErr error
}

func (f *fakeHandler) StartBot(req botconfig.StartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	return f.startErr
}

func (f *fakeHandler) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func TestNewClient(t *testing.T) {
	hub := NewHub(0)
	client := NewClient(hub, nil)

	assert.Same(t, hub, client.hub)
	assert.NotNil(t, client.send)
	assert.NotEmpty(t, client.id)
	assert.False(t, client.connectedAt.IsZero())
}

func TestClientHandleMessage(t *testing.T) {
	hub := NewHub(0)
	handler := &fakeHandler{}
	hub.SetCommandHandler(handler)
	client := newTestClient(hub, "test-client")

	t.Run("ping", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"ping"}`))
		assert.Equal(t, TypePong, receive(t, client).Type)
	})

	t.Run("invalid json", func(t *testing.T) {
		client.handleMessage([]byte(`{not json`))
		msg := receive(t, client)
		assert.Equal(t, TypeError, msg.Type)
		assert.Equal(t, ErrCodeInvalidMessage, msg.Code)
	})

	t.Run("start without request", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"start"}`))
		msg := receive(t, client)
		assert.Equal(t, ErrCodeInvalidRequest, msg.Code)
	})

	t.Run("start", func(t *testing.T) {
		payload := `{"type":"start","request":{"auth":"ptc","location":"Viridian","opts":{"ptc_username":"ash","walk_speed":"5"}}}`
		client.handleMessage([]byte(payload))

		msg := receive(t, client)
		assert.Equal(t, TypeAck, msg.Type)
		assert.Equal(t, TypeStart, msg.Message)

		require.Len(t, handler.started, 1)
		assert.Equal(t, "ptc", handler.started[0].Auth)
		assert.Equal(t, "Viridian", handler.started[0].Location)
		assert.Equal(t, "ash", handler.started[0].Options.PTCUsername)
		assert.Equal(t, "5", handler.started[0].Options.WalkSpeed)
	})

	t.Run("start failure maps validation errors", func(t *testing.T) {
		handler.startErr = &botconfig.WalkSpeedError{Value: "fast"}
		defer func() { handler.startErr = nil }()

		client.handleMessage([]byte(`{"type":"start","request":{"auth":"ptc"}}`))
		msg := receive(t, client)
		assert.Equal(t, TypeError, msg.Type)
		assert.Equal(t, ErrCodeInvalidRequest, msg.Code)
	})

	t.Run("start failure", func(t *testing.T) {
		handler.startErr = errors.New("spawn failed")
		defer func() { handler.startErr = nil }()

		client.handleMessage([]byte(`{"type":"start","request":{"auth":"ptc"}}`))
		msg := receive(t, client)
		assert.Equal(t, ErrCodeStartFailed, msg.Code)
		assert.Equal(t, "spawn failed", msg.Message)
	})

	t.Run("logout", func(t *testing.T) {
		client.handleMessage([]byte(`{"type":"logout"}`))
		assert.Equal(t, TypeAck, receive(t, client).Type)
		assert.Equal(t, 1, handler.logouts)
	})
}

func TestClientHandleMessage_NoHandler(t *testing.T) {
	hub := NewHub(0)
	client := newTestClient(hub, "c")

	client.handleMessage([]byte(`{"type":"logout"}`))
	assert.Equal(t, ErrCodeNoHandler, receive(t, client).Code)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"null", false},
		{"file://", false},
		{"http://127.0.0.1:18790", true},
		{"http://127.0.0.1:9999", false},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:18790/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}

func TestServeWs_RoundTrip(t *testing.T) {
	hub := NewHub(10)
	go hub.Run()
	defer hub.Close()
	hub.AppLog("before connect")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() WSMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	msg := read()
	assert.Equal(t, TypeAppLog, msg.Type)
	assert.Equal(t, "before connect", msg.Msg)

	hub.Alert("run-9", "ERROR something broke")
	msg = read()
	assert.Equal(t, TypeAlert, msg.Type)
	assert.Equal(t, "run-9", msg.RunID)

	data, _ := json.Marshal(WSMessage{Type: TypePing})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	assert.Equal(t, TypePong, read().Type)
}
