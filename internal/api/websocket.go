package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dgallion1/folio/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers are authenticated by API key, not by origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans session snapshots out to the websocket clients watching them.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[string]map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// wsMessage is pushed to clients whenever their session changes.
type wsMessage struct {
	Type    string            `json:"type"`
	Session *session.Snapshot `json:"session,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// wsAction is sent by clients to turn pages without an HTTP round trip.
type wsAction struct {
	Action string `json:"action"` // next, prev or jump
	Index  int    `json:"index"`
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[string]map[*wsClient]struct{})}
}

// Publish sends the session's current snapshot to its subscribers. Slow
// clients miss updates rather than block the caller.
func (h *Hub) Publish(sess *session.Session) {
	if h.Subscribers(sess.ID()) == 0 {
		return
	}
	snap := sess.Snapshot()
	h.deliver(sess.ID(), wsMessage{Type: "session", Session: &snap})
}

func (h *Hub) deliver(sessionID string, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode websocket message", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- data:
		default:
			h.log.Warn("websocket client lagging, update dropped", "session_id", sessionID)
		}
	}
}

// Subscribers counts the clients watching a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[c.sessionID] == nil {
		h.clients[c.sessionID] = make(map[*wsClient]struct{})
	}
	h.clients[c.sessionID][c] = struct{}{}
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
	close(c.send)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, id)
	}
}

// handleStoryWebSocket streams snapshots of one session and accepts
// page-turn actions.
func (s *Server) handleStoryWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orchestrator.Sessions().Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{sessionID: sess.ID(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	log := s.log.With("session_id", sess.ID())
	log.Info("websocket connected", "remote", r.RemoteAddr)

	go c.writePump()
	s.hub.Publish(sess)

	c.readPump(func(a wsAction) {
		switch a.Action {
		case "next":
			sess.Advance()
		case "prev":
			sess.Retreat()
		case "jump":
			sess.JumpTo(a.Index)
		default:
			s.hub.deliver(sess.ID(), wsMessage{Type: "error", Error: "unknown action " + a.Action})
			return
		}
		s.hub.Publish(sess)
	})

	s.hub.remove(c)
	log.Info("websocket disconnected")
}

func (c *wsClient) readPump(handle func(wsAction)) {
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var a wsAction
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		handle(a)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
