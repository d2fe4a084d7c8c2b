package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"sphere-field/internal/physics"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// DefaultStreamHz is the snapshot broadcast rate
	DefaultStreamHz = 10

	// EventSnapshot tags snapshot frames on the wire
	EventSnapshot = "snapshot"

	wsWriteWait    = 2 * time.Second
	wsMaxReadBytes = 512
)

// WSMessage is the msgpack envelope of every frame sent to clients.
type WSMessage struct {
	Event string `msgpack:"event"`
	Data  any    `msgpack:"data"`
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub manages all WebSocket connections with DoS protection.
// Run is the only goroutine that writes to client connections.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	upgrader  websocket.Upgrader
	origins   *OriginPolicy
	conns     *ConnLimiter

	stopChan chan struct{}
	stopOnce sync.Once
	loopWg   sync.WaitGroup
}

// NewWebSocketHub creates a new hub with connection limiting.
// A nil policy allows only localhost origins.
func NewWebSocketHub(origins *OriginPolicy) *WebSocketHub {
	if origins == nil {
		origins = NewOriginPolicy(nil)
	}
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		origins:    origins,
		conns:      NewConnLimiter(MaxWSConnectionsTotal, MaxWSConnectionsPerIP),
		stopChan:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if h.origins.Allowed(origin) {
		return true
	}

	// Log rejected origin for security monitoring
	log.Printf("⚠️ WebSocket connection rejected from origin: %q", origin)
	RecordConnectionRejected("origin")
	return false
}

// Start runs the hub in the background until Stop.
func (h *WebSocketHub) Start() {
	h.loopWg.Add(1)
	go func() {
		defer h.loopWg.Done()
		h.Run()
	}()
}

// Run services registrations and broadcasts until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.remove(conn)

		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.remove(conn)
			}
			IncrementWSMessages()

		case <-h.stopChan:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.conns.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return
		}
	}
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		h.conns.Release(client.ip)
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		log.Printf("📱 Client disconnected (%d remaining)", count)
		UpdateWSConnections(count)
	}
}

// Stop closes every connection and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
	h.loopWg.Wait()
}

// Broadcast encodes data with msgpack and queues it for every client.
// Frames are dropped when the queue is full.
func (h *WebSocketHub) Broadcast(event string, data any) {
	payload, err := msgpack.Marshal(&WSMessage{Event: event, Data: data})
	if err != nil {
		log.Printf("⚠️ WebSocket encode failed: %v", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop sends the latest snapshot hz times per second while
// clients are connected. Unchanged snapshots are not resent.
func (h *WebSocketHub) StartBroadcastLoop(engine EngineInterface, hz int) {
	if hz <= 0 {
		hz = DefaultStreamHz
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))

	h.loopWg.Add(1)
	go func() {
		defer h.loopWg.Done()
		defer ticker.Stop()

		var lastSeq uint64
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
			}
			if h.ClientCount() == 0 {
				continue
			}
			snap := engine.Snapshot()
			if snap.Sequence == lastSeq {
				continue
			}
			lastSeq = snap.Sequence
			h.Broadcast(EventSnapshot, snap)
		}
	}()
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)
	if reason, ok := h.conns.Acquire(ip); !ok {
		log.Printf("⚠️ WebSocket connection from %s rejected: %s", ip, reason)
		RecordConnectionRejected(reason)
		if reason == RejectTotal {
			http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		} else {
			http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade error: %v", err)
		h.conns.Release(ip)
		return
	}
	conn.SetReadLimit(wsMaxReadBytes)

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.stopChan:
		h.conns.Release(ip)
		conn.Close()
		return
	}

	// The stream is one-way; reading only services control frames and
	// detects disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		select {
		case h.unregister <- conn:
		case <-h.stopChan:
		}
	}()
}

// DecodeSnapshotFrame decodes a frame produced by the broadcast loop.
func DecodeSnapshotFrame(frame []byte) (string, *physics.Snapshot, error) {
	var msg struct {
		Event string            `msgpack:"event"`
		Data  *physics.Snapshot `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(frame, &msg); err != nil {
		return "", nil, err
	}
	return msg.Event, msg.Data, nil
}
