package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager tracks the websocket connections of this process per
// session and delivers frames to them.
type ConnectionManager struct {
	sessions map[string]map[*Connection]bool
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	deliverCh chan delivery

	// onMessage handles client frames; onClose runs when the last
	// connection of a participant in a session goes away.
	onMessage func(ctx context.Context, c *Connection, raw []byte)
	onClose   func(sessionID, participantID string)
}

// Connection is one client socket bound to a session and participant.
type Connection struct {
	ID            string
	ParticipantID string
	SessionID     string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

type delivery struct {
	sessionID   string
	recipientID string // empty means everyone in the session
	data        []byte
	drop        bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &ConnectionManager{
		sessions: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		deliverCh: make(chan delivery, 1000),
	}
}

// OnMessage sets the client frame handler. Call before serving.
func (cm *ConnectionManager) OnMessage(fn func(ctx context.Context, c *Connection, raw []byte)) {
	cm.onMessage = fn
}

// OnClose sets the hook run when a participant has no connections left.
func (cm *ConnectionManager) OnClose(fn func(sessionID, participantID string)) {
	cm.onClose = fn
}

// Start processes deliveries until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) error {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return nil
		case d := <-cm.deliverCh:
			cm.handleDelivery(d)
		}
	}
}

// UpgradeConnection upgrades an HTTP request and starts the pumps. The
// returned connection is already registered.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID, participantID string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		SessionID:     sessionID,
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBuffer),
		Manager:       cm,
		ConnectedAt:   time.Now(),
	}
	cm.registerConnection(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("participant_id", participantID).
		Str("session_id", sessionID).
		Msg("websocket connection established")
	return c, nil
}

func (cm *ConnectionManager) registerConnection(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessions[c.SessionID] == nil {
		cm.sessions[c.SessionID] = make(map[*Connection]bool)
	}
	cm.sessions[c.SessionID][c] = true

	log.Debug().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Int("total_connections", len(cm.sessions[c.SessionID])).
		Msg("connection registered")
}

// unregisterConnection removes c and runs onClose if it was the
// participant's last connection to the session.
func (cm *ConnectionManager) unregisterConnection(c *Connection) {
	cm.mu.Lock()
	conns, ok := cm.sessions[c.SessionID]
	if !ok || !conns[c] {
		cm.mu.Unlock()
		return
	}
	delete(conns, c)
	last := true
	for other := range conns {
		if other.ParticipantID == c.ParticipantID {
			last = false
			break
		}
	}
	if len(conns) == 0 {
		delete(cm.sessions, c.SessionID)
	}
	cm.mu.Unlock()

	c.close()
	log.Info().
		Str("connection_id", c.ID).
		Str("participant_id", c.ParticipantID).
		Str("session_id", c.SessionID).
		Msg("connection unregistered")

	if last && cm.onClose != nil {
		cm.onClose(c.SessionID, c.ParticipantID)
	}
}

// Deliver queues an encoded frame for a session, or for one participant in
// it when recipientID is set.
func (cm *ConnectionManager) Deliver(sessionID, recipientID string, data []byte) {
	select {
	case cm.deliverCh <- delivery{sessionID: sessionID, recipientID: recipientID, data: data}:
	default:
		log.Warn().
			Str("session_id", sessionID).
			Str("participant_id", recipientID).
			Msg("delivery channel full, dropping frame")
	}
}

// DropAfterFlush closes the connections once every frame queued before
// this call has been handed to them.
func (cm *ConnectionManager) DropAfterFlush(sessionID, participantID string) {
	select {
	case cm.deliverCh <- delivery{sessionID: sessionID, recipientID: participantID, drop: true}:
	default:
		cm.Drop(sessionID, participantID)
	}
}

func (cm *ConnectionManager) handleDelivery(d delivery) {
	if d.drop {
		cm.Drop(d.sessionID, d.recipientID)
		return
	}
	cm.mu.RLock()
	var targets []*Connection
	for c := range cm.sessions[d.sessionID] {
		if d.recipientID != "" && c.ParticipantID != d.recipientID {
			continue
		}
		targets = append(targets, c)
	}
	cm.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(d.data) {
			log.Warn().
				Str("connection_id", c.ID).
				Str("participant_id", c.ParticipantID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(c)
		}
	}
}

// Drop closes local connections of a session without running the close
// hook. An empty participantID drops the whole session.
func (cm *ConnectionManager) Drop(sessionID, participantID string) {
	cm.mu.Lock()
	var targets []*Connection
	for c := range cm.sessions[sessionID] {
		if participantID == "" || c.ParticipantID == participantID {
			targets = append(targets, c)
			delete(cm.sessions[sessionID], c)
		}
	}
	if len(cm.sessions[sessionID]) == 0 {
		delete(cm.sessions, sessionID)
	}
	cm.mu.Unlock()

	for _, c := range targets {
		c.close()
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	var all []*Connection
	for _, conns := range cm.sessions {
		for c := range conns {
			all = append(all, c)
		}
	}
	cm.sessions = make(map[string]map[*Connection]bool)
	cm.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

// Stats returns connection counts.
func (cm *ConnectionManager) Stats() map[string]int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	for _, conns := range cm.sessions {
		total += len(conns)
	}
	return map[string]int{
		"total_connections": total,
		"active_sessions":   len(cm.sessions),
	}
}

// trySend queues data without blocking and reports whether it fit.
func (c *Connection) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
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
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close")
			}
			return
		}
		if c.Manager.onMessage != nil {
			c.Manager.onMessage(context.Background(), c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
