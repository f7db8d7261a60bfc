package matchserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// HubConfig holds configuration for WebSocket connections
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns default WebSocket configuration
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// SyncFunc builds the stateSync event a new connection starts with
type SyncFunc func(player, sessionID string) (*wire.Event, error)

// Hub manages WebSocket push connections per session. Each connection belongs to
// one player and only receives that player's events.
type Hub struct {
	sessions map[string]map[*Connection]bool
	mu       sync.RWMutex

	upgrader    websocket.Upgrader
	config      HubConfig
	broadcastCh chan broadcastMessage
	syncFn      SyncFunc
}

// Connection is one player's WebSocket
type Connection struct {
	ID        string
	PlayerID  string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	hub       *Hub

	ConnectedAt time.Time
}

type broadcastMessage struct {
	SessionID string
	PlayerID  string
	Event     *wire.Event
}

func NewHub(config HubConfig, syncFn SyncFunc) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
		syncFn:      syncFn,
	}
}

// Start processes broadcasts until ctx is cancelled
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("push hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("push hub shutting down")
			return
		case msg := <-h.broadcastCh:
			h.handleBroadcast(msg)
		}
	}
}

// Notify queues an event for one player's connections
func (h *Hub) Notify(sessionID, playerID string, event *wire.Event) {
	select {
	case h.broadcastCh <- broadcastMessage{SessionID: sessionID, PlayerID: playerID, Event: event}:
	default:
		log.Warn().
			Str("session_id", sessionID).
			Str("player_id", playerID).
			Msg("broadcast channel full, dropping event")
	}
}

// ServeSession upgrades the request and registers the player's connection
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, playerID, sessionID string) error {
	initial, err := h.syncFn(playerID, sessionID)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil
	}

	c := &Connection{
		ID:          uuid.NewString(),
		PlayerID:    playerID,
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		ConnectedAt: time.Now(),
	}
	h.register(c)

	if data, err := json.Marshal(initial); err == nil {
		select {
		case c.Send <- data:
		default:
		}
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("player_id", playerID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")
	return nil
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[*Connection]bool)
	}
	h.sessions[c.SessionID][c] = true

	log.Debug().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Int("session_connections", len(h.sessions[c.SessionID])).
		Msg("connection registered")
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.sessions[c.SessionID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.Send)
	if len(conns) == 0 {
		delete(h.sessions, c.SessionID)
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("player_id", c.PlayerID).
		Str("session_id", c.SessionID).
		Msg("connection unregistered")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*Connection
	for _, conns := range h.sessions {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) handleBroadcast(msg broadcastMessage) {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so unregister cannot close a Send channel
	// mid-broadcast; slow connections are dropped after it is released.
	var delivered int
	var slow []*Connection
	h.mu.RLock()
	for c := range h.sessions[msg.SessionID] {
		if c.PlayerID != msg.PlayerID {
			continue
		}
		select {
		case c.Send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().
			Str("connection_id", c.ID).
			Str("player_id", c.PlayerID).
			Msg("connection send buffer full, closing connection")
		h.unregister(c)
		c.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(msg.Event.Type)).
		Str("session_id", msg.SessionID).
		Uint64("seq", msg.Event.Seq).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// Stats reports connection counts
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, conns := range h.sessions {
		total += len(conns)
	}
	return map[string]int{
		"total_connections": total,
		"active_sessions":   len(h.sessions),
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// handleClientMessage answers "sync" with a fresh stateSync; anything else is logged
func (c *Connection) handleClientMessage(message []byte) {
	var msg wire.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		return
	}

	switch msg.Action {
	case wire.ClientActionSync:
		ev, err := c.hub.syncFn(c.PlayerID, c.SessionID)
		if err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("sync request failed")
			return
		}
		c.hub.Notify(c.SessionID, c.PlayerID, ev)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("player_id", c.PlayerID).
			Str("action", msg.Action).
			Msg("received client message")
	}
}
