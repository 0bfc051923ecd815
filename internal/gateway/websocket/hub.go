package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"gofshell/internal/botconfig"
	"gofshell/pkg/logger"
)

// CommandHandler executes commands sent by the UI.
type CommandHandler interface {
	StartBot(req botconfig.StartRequest) error
	Logout() error
}

// Hub maintains the set of connected UI clients and fans out events.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan event
	done       chan struct{}
	closeOnce  sync.Once

	mu sync.RWMutex

	// Recent log events replayed to newly connected clients.
	backlog     [][]byte
	backlogSize int
	lastPage    []byte
	page        string
	// seq numbers events in publish order.
	seq uint64

	handler CommandHandler
	dropped atomic.Int64
}

// NewHub creates a hub that keeps the last backlogSize log events.
func NewHub(backlogSize int) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan event, 256),
		done:        make(chan struct{}),
		backlogSize: backlogSize,
	}
}

// SetCommandHandler sets the receiver of UI commands.
func (h *Hub) SetCommandHandler(handler CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) commandHandler() CommandHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// event is one published message. Replayed events also reach clients that
// register later through the backlog replay.
type event struct {
	seq      uint64
	data     []byte
	replayed bool
}

// Run starts the hub's main loop. It returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			client.replayedThrough = h.seq
			replay := make([][]byte, 0, len(h.backlog)+1)
			replay = append(replay, h.backlog...)
			if h.lastPage != nil {
				replay = append(replay, h.lastPage)
			}
			h.mu.Unlock()

			for _, data := range replay {
				select {
				case client.send <- data:
				default:
				}
			}
			logger.Info().Str("client_id", client.id).Msg("UI client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("UI client disconnected")

		case ev := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if ev.replayed && ev.seq <= client.replayedThrough {
					continue
				}
				select {
				case client.send <- ev.data:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Close stops Run and closes every client's send channel.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish sends msg to every client. It never blocks: when the broadcast
// queue is full the event is dropped so a slow UI cannot stall the bot's
// output pipes.
func (h *Hub) Publish(msg *WSMessage) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal event")
		return
	}

	// Queue under the lock so clients see events in backlog order.
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	ev := event{seq: h.seq, data: data}
	if isLogEvent(msg.Type) && h.backlogSize > 0 {
		ev.replayed = true
		h.backlog = append(h.backlog, data)
		if over := len(h.backlog) - h.backlogSize; over > 0 {
			h.backlog = append(h.backlog[:0:0], h.backlog[over:]...)
		}
	}
	if msg.Type == TypePage {
		ev.replayed = true
		h.lastPage = data
		h.page = msg.Page
	}

	select {
	case h.broadcast <- ev:
	case <-h.done:
	default:
		h.dropped.Add(1)
	}
}

// AppLog publishes a shell message.
func (h *Hub) AppLog(text string) {
	h.Publish(&WSMessage{Type: TypeAppLog, Msg: text})
}

// BotLog publishes a chunk of bot output.
func (h *Hub) BotLog(runID, stream, text string) {
	h.Publish(&WSMessage{Type: TypeBotLog, RunID: runID, Stream: stream, Msg: text})
}

// Alert publishes a bot error the UI should surface prominently.
func (h *Hub) Alert(runID, text string) {
	h.Publish(&WSMessage{Type: TypeAlert, RunID: runID, Msg: text})
}

// ShowPage tells the UI which page to display.
func (h *Hub) ShowPage(page string) {
	h.Publish(&WSMessage{Type: TypePage, Page: page})
}

// Status publishes the bot running state.
func (h *Hub) Status(running bool) {
	h.Publish(&WSMessage{Type: TypeStatus, Running: &running})
}

// Reload tells the UI a bot file changed on disk.
func (h *Hub) Reload(path string) {
	h.Publish(&WSMessage{Type: TypeReload, Path: path})
}

// Backlog returns a copy of the buffered log events.
func (h *Hub) Backlog() [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([][]byte, len(h.backlog))
	copy(out, h.backlog)
	return out
}

// Page returns the page the UI was last told to show.
func (h *Hub) Page() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.page
}

// Dropped returns how many events were discarded because the queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
