package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans pipeline progress events out to WebSocket watchers. Each watched
// segment gets one Redis pub/sub subscription shared by all its watchers.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
	redisClient *redis.Client
	jwtSecret   []byte
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		redisClient: redisClient,
		jwtSecret:   []byte(jwtSecret),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

// HandleWebSocket upgrades a watcher connection. Callers authenticate with
// a service token and name the segment they want progress for:
// /ws?token=...&segment=<uuid>
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	segmentID, err := uuid.Parse(r.URL.Query().Get("segment"))
	if err != nil {
		http.Error(w, "Missing or invalid segment id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(segmentID, conn)

	go func() {
		defer h.unregisterConnection(segmentID, conn)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(segmentID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[segmentID] = append(h.connections[segmentID], conn)

	// First watcher of a segment starts its pub/sub subscription.
	if len(h.connections[segmentID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[segmentID] = cancel
		go h.subscribeToPubSub(ctx, segmentID)
	}

	log.Printf("WebSocket connected: segment %s (watchers: %d)", segmentID, len(h.connections[segmentID]))
}

func (h *Hub) unregisterConnection(segmentID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[segmentID]
	for i, c := range conns {
		if c == conn {
			h.connections[segmentID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[segmentID]) == 0 {
		delete(h.connections, segmentID)
		if cancel, ok := h.cancelFuncs[segmentID]; ok {
			cancel()
			delete(h.cancelFuncs, segmentID)
		}
	}

	log.Printf("WebSocket disconnected: segment %s", segmentID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, segmentID uuid.UUID) {
	channel := "segment_updates:" + segmentID.String()
	pubsub := h.redisClient.Subscribe(ctx, channel)
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
			h.broadcast(segmentID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(segmentID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[segmentID] {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}
