// Package invest — WebSocket hub for per-account push notifications.
package invest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vesto/invest-engine/internal/metrics"
)

// wsRequest is the client-to-server control message.
// {"action":"subscribe","account_id":"alice"} selects which account's
// events the connection receives; "unsubscribe" stops them.
type wsRequest struct {
	Action    string `json:"action"`
	AccountID string `json:"account_id"`
}

type wsSubscription struct {
	conn      *websocket.Conn
	accountID string
}

type wsEvent struct {
	accountID string
	data      []byte
}

// Hub manages WebSocket connections grouped by account identifier and
// pushes events to the subscribers of that account. Events published for an
// account nobody watches are dropped. All connection state is confined to
// the Run goroutine; the channels are the only way in.
type Hub struct {
	register    chan *websocket.Conn
	drop        chan *websocket.Conn
	subscribe   chan wsSubscription
	unsubscribe chan *websocket.Conn
	events      chan wsEvent

	// Owned by Run.
	groups map[string]map[*websocket.Conn]bool
	conns  map[*websocket.Conn]string // conn → subscribed account ("" = none)
}

// NewHub creates a WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		register:    make(chan *websocket.Conn),
		drop:        make(chan *websocket.Conn),
		subscribe:   make(chan wsSubscription),
		unsubscribe: make(chan *websocket.Conn),
		events:      make(chan wsEvent, 256),
		groups:      make(map[string]map[*websocket.Conn]bool),
		conns:       make(map[*websocket.Conn]string),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.conns[conn] = ""
			metrics.WebSocketClients.Set(float64(len(h.conns)))
			slog.Info("ws client connected", "total", len(h.conns))

		case conn := <-h.drop:
			if _, ok := h.conns[conn]; ok {
				h.leaveGroup(conn)
				delete(h.conns, conn)
				conn.Close()
			}
			metrics.WebSocketClients.Set(float64(len(h.conns)))

		case sub := <-h.subscribe:
			if _, ok := h.conns[sub.conn]; !ok {
				continue
			}
			h.leaveGroup(sub.conn)
			if h.groups[sub.accountID] == nil {
				h.groups[sub.accountID] = make(map[*websocket.Conn]bool)
			}
			h.groups[sub.accountID][sub.conn] = true
			h.conns[sub.conn] = sub.accountID
			slog.Info("ws client subscribed", "account", sub.accountID)

			h.write(sub.conn, Event{
				Type:      EventSubscriptionConfirmed,
				AccountID: sub.accountID,
				Message:   "subscribed to account updates",
			})

		case conn := <-h.unsubscribe:
			if _, ok := h.conns[conn]; !ok {
				continue
			}
			h.leaveGroup(conn)
			h.conns[conn] = ""

		case ev := <-h.events:
			for conn := range h.groups[ev.accountID] {
				if err := conn.WriteMessage(websocket.TextMessage, ev.data); err != nil {
					h.leaveGroup(conn)
					delete(h.conns, conn)
					conn.Close()
				}
			}
		}
	}
}

// leaveGroup removes the connection from its current account group.
// Called only from Run.
func (h *Hub) leaveGroup(conn *websocket.Conn) {
	acct := h.conns[conn]
	if acct == "" {
		return
	}
	delete(h.groups[acct], conn)
	if len(h.groups[acct]) == 0 {
		delete(h.groups, acct)
	}
}

// write marshals and sends one event to one connection. Called only from Run.
func (h *Hub) write(conn *websocket.Conn, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.leaveGroup(conn)
		delete(h.conns, conn)
		conn.Close()
	}
}

// Publish sends an event to the subscribers of accountID.
func (h *Hub) Publish(accountID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.events <- wsEvent{accountID: accountID, data: data}:
	default:
		// Drop if buffer full to avoid blocking the engine.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn
	done := make(chan struct{})

	// Read pump: handles subscribe/unsubscribe requests and detects
	// disconnects.
	go func() {
		defer func() {
			close(done)
			h.drop <- conn
		}()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if json.Unmarshal(data, &req) != nil {
				continue // ignore malformed frames
			}
			switch req.Action {
			case "subscribe":
				if req.AccountID != "" {
					h.subscribe <- wsSubscription{conn: conn, accountID: req.AccountID}
				}
			case "unsubscribe":
				h.unsubscribe <- conn
			}
		}
	}()

	// Ping ticker to keep the connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

var _ Notifier = (*Hub)(nil)
