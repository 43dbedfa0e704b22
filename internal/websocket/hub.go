package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"systemsmap-client/internal/models"
)

const (
	writeWait      = 10 * time.Second
	publishTimeout = 2 * time.Second
	// sendBuffer is how many events a connection may fall behind before it
	// is dropped.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier resolves a shell token to its client id.
type TokenVerifier interface {
	ParseToken(tokenStr string) (string, error)
}

// client is one connection with its own outgoing queue. Only writePump
// writes to conn.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{id: id, conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub pushes state events to every connected presentation client. With a
// Redis client configured, events go through a pub/sub channel so several
// shell processes can watch the same session.
type Hub struct {
	mu          sync.Mutex
	connections map[string][]*client
	closed      bool
	cancelSub   context.CancelFunc
	wg          sync.WaitGroup

	redisPub *redis.Client
	redisSub *redis.Client
	channel  string
	verifier TokenVerifier
	snapshot func() models.Snapshot
	logger   *zap.Logger
}

type HubOptions struct {
	// RedisPublish and RedisSubscribe enable pub/sub fan-out when both are set.
	RedisPublish   *redis.Client
	RedisSubscribe *redis.Client
	Channel        string
	// Snapshot, when set, is sent to each new connection before any event.
	Snapshot func() models.Snapshot
	Logger   *zap.Logger
}

func NewHub(verifier TokenVerifier, opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		connections: make(map[string][]*client),
		channel:     opts.Channel,
		verifier:    verifier,
		snapshot:    opts.Snapshot,
		logger:      logger,
	}
	if opts.RedisPublish != nil && opts.RedisSubscribe != nil {
		h.redisPub = opts.RedisPublish
		h.redisSub = opts.RedisSubscribe
	}
	return h
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	clientID, err := h.verifier.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(clientID, conn)
	if !h.registerConnection(c) {
		conn.Close()
		return
	}

	go h.writePump(c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.wg.Done()
		defer h.unregisterConnection(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// registerConnection adds c and reserves wait group slots for its reader and
// writer. It reports false once the hub is closed.
func (h *Hub) registerConnection(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.wg.Add(2)

	h.connections[c.id] = append(h.connections[c.id], c)
	total := h.countLocked()

	// Start pub/sub subscription with the first connection
	if total == 1 && h.redisSub != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelSub = cancel
		h.wg.Add(1)
		go h.subscribeToPubSub(ctx)
	}

	// Queued before any event can reach the new client.
	if h.snapshot != nil {
		data, err := json.Marshal(models.WSMessage{Type: models.EventSnapshot, Payload: h.snapshot()})
		if err != nil {
			h.logger.Warn("failed to encode snapshot", zap.Error(err))
		} else {
			c.send <- data
		}
	}

	h.logger.Info("websocket connected", zap.String("client_id", c.id), zap.Int("total", total))
	return true
}

func (h *Hub) unregisterConnection(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.close()

	conns := h.connections[c.id]
	for i, other := range conns {
		if other == c {
			h.connections[c.id] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[c.id]) == 0 {
		delete(h.connections, c.id)
	}

	// If no more connections, cancel pub/sub
	if h.countLocked() == 0 && h.cancelSub != nil {
		h.cancelSub()
		h.cancelSub = nil
	}

	h.logger.Info("websocket disconnected", zap.String("client_id", c.id))
}

// writePump is the only writer for c.conn. A failed or timed out write
// closes the connection and the reader unregisters it.
func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) subscribeToPubSub(ctx context.Context) {
	defer h.wg.Done()

	pubsub := h.redisSub.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload))
		}
	}
}

// Publish implements state.Publisher.
func (h *Hub) Publish(msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	if h.redisPub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		err := h.redisPub.Publish(ctx, h.channel, data).Err()
		if err == nil {
			return
		}
		h.logger.Warn("redis publish failed, delivering locally", zap.Error(err))
	}
	h.broadcast(data)
}

// broadcast queues data for every client without waiting on any socket.
func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.connections {
		for _, c := range conns {
			select {
			case c.send <- data:
			case <-c.done:
			default:
				h.logger.Warn("websocket client too slow, dropping", zap.String("client_id", c.id))
				c.close()
			}
		}
	}
}

func (h *Hub) countLocked() int {
	n := 0
	for _, conns := range h.connections {
		n += len(conns)
	}
	return n
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countLocked()
}

// Close disconnects every client and waits for their goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, conns := range h.connections {
		for _, c := range conns {
			c.close()
		}
	}
	if h.cancelSub != nil {
		h.cancelSub()
		h.cancelSub = nil
	}
	h.mu.Unlock()

	h.wg.Wait()
}
