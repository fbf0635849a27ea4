package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kcu-coach-engine/internal/events"
)

// sendBufferSize bounds the per-connection frame queue. A client that
// cannot drain this many frames is dropped rather than allowed to stall
// the hub.
const sendBufferSize = 64

// Conn is one open push connection. A user may hold several at once
// (multiple tabs); each gets its own send queue and writer loop so a
// failure on one never touches its siblings.
type Conn struct {
	ID     string
	UserID string

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// Done is closed exactly once when the connection is torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Hub is the connection registry and broadcaster: a one-to-many mapping
// of user id to open push connections. Reads (broadcast) and writes
// (register/unregister) are safe concurrently.
type Hub struct {
	mu        sync.RWMutex
	userConns map[string]map[*Conn]bool
	logger    zerolog.Logger

	// onUserGone fires after a user's last connection is unregistered,
	// letting the owner release coaching state and feed subscriptions.
	onUserGone func(userID string)
}

// NewHub creates an empty connection hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		userConns: make(map[string]map[*Conn]bool),
		logger:    logger.With().Str("component", "SSEHub").Logger(),
	}
}

// OnUserGone sets the callback invoked when a user's last connection
// closes. Must be called before the hub starts accepting connections.
func (h *Hub) OnUserGone(fn func(userID string)) {
	h.onUserGone = fn
}

// Register creates and tracks a new connection for a user.
func (h *Hub) Register(userID string) *Conn {
	conn := &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Conn]bool)
	}
	h.userConns[userID][conn] = true
	count := len(h.userConns[userID])
	h.mu.Unlock()

	h.logger.Info().Str("user_id", userID).Str("conn_id", conn.ID).Int("connections", count).Msg("connection opened")
	return conn
}

// Unregister tears a connection down. Safe to call from both the writer
// loop and the request goroutine; only the first call does the work.
func (h *Hub) Unregister(conn *Conn) {
	conn.closeOnce.Do(func() {
		close(conn.done)

		h.mu.Lock()
		userGone := false
		if conns, ok := h.userConns[conn.UserID]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.userConns, conn.UserID)
				userGone = true
			}
		}
		h.mu.Unlock()

		h.logger.Info().Str("user_id", conn.UserID).Str("conn_id", conn.ID).Msg("connection closed")

		if userGone && h.onUserGone != nil {
			h.onUserGone(conn.UserID)
		}
	})
}

// BroadcastToUser queues a coaching event for every open connection the
// user has. A connection whose queue is full simply misses the frame;
// delivery to the user's other connections is unaffected.
func (h *Hub) BroadcastToUser(userID string, event events.CoachingEvent) {
	frame, err := frameEvent(string(event.EventType), event)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.userConns[userID] {
		select {
		case conn.send <- frame:
		default:
			h.logger.Warn().Str("user_id", userID).Str("conn_id", conn.ID).Msg("send queue full, frame dropped")
		}
	}
}

// UserConnectionCount returns the number of open connections for a user.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID])
}

// TotalConnectionCount returns the number of open connections.
func (h *Hub) TotalConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.userConns {
		total += len(conns)
	}
	return total
}

// ConnectedUsers returns the ids of users with at least one connection.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.userConns))
	for userID := range h.userConns {
		users = append(users, userID)
	}
	return users
}

// frameEvent renders a named SSE frame: an event line, a data line with
// the JSON payload, and the blank line terminator.
func frameEvent(name string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", name, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)), nil
}

// connectedPayload is the body of the connected frame sent once per new
// connection.
type connectedPayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Symbols   []string  `json:"symbols,omitempty"`
}

// heartbeatPayload is the body of the periodic keepalive frame.
type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
}
