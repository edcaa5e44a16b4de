// Package observer provides a read-only websocket bridge: PROGRESS, END,
// GLOBAL_MODE_CHANGED notifications and snapshot summaries are mirrored as
// JSON to any connected browser dashboard. It never issues control requests
// and never mutates server state.
package observer

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one observer-facing notification, JSON-encoded for dashboards.
type Event struct {
	Type      string                 `json:"type"` // "progress", "end", "global_mode_changed", "snapshot_summary"
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Bridge manages websocket connections for live observer updates, grounded
// on the same register/unregister/broadcast-channel hub shape used
// elsewhere in this codebase for fan-out to many readers.
type Bridge struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewBridge constructs an idle bridge; call Run to start its event loop.
func NewBridge() *Bridge {
	return &Bridge{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run drives the hub and never returns: Bridge has no stop signal, since it
// only ever observes and never blocks critical work.
func (b *Bridge) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			n := len(b.clients)
			b.mu.Unlock()
			slog.Debug("observer: client connected", "total", n)

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				client.Close()
			}
			n := len(b.clients)
			b.mu.Unlock()
			slog.Debug("observer: client disconnected", "total", n)

		case event := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				if err := client.WriteJSON(event); err != nil {
					client.Close()
					delete(b.clients, client)
				}
			}
			b.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades an HTTP request to a websocket connection and
// registers it with the hub; the connection is read-only on our side, so we
// only drain incoming frames to notice disconnects.
func (b *Bridge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("observer: websocket upgrade failed", "error", err)
		return
	}

	b.register <- conn

	go func() {
		defer func() { b.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Emit queues an event for broadcast, stamping its timestamp.
func (b *Bridge) Emit(event Event) {
	event.Timestamp = time.Now()
	select {
	case b.broadcast <- event:
	default:
		// Observer channel full: drop rather than block the simulation loop,
		// matching the wire protocol's best-effort broadcast discipline.
	}
}

// Progress emits a progress observer event.
func (b *Bridge) Progress(currentRep, totalReps uint32) {
	b.Emit(Event{Type: "progress", Data: map[string]interface{}{
		"current_rep": currentRep,
		"total_reps":  totalReps,
	}})
}

// End emits a batch-completion observer event.
func (b *Bridge) End(stopped bool) {
	b.Emit(Event{Type: "end", Data: map[string]interface{}{
		"stopped": stopped,
	}})
}

// GlobalModeChanged emits a mode-change observer event.
func (b *Bridge) GlobalModeChanged(mode uint32, changedByPID uint32) {
	b.Emit(Event{Type: "global_mode_changed", Data: map[string]interface{}{
		"mode":           mode,
		"changed_by_pid": changedByPID,
	}})
}

// SnapshotSummary emits a lightweight summary (not the full chunked field
// data — that stays on the control socket) for dashboard display.
func (b *Bridge) SnapshotSummary(snapshotID uint64, cellCount uint32, fields uint32) {
	b.Emit(Event{Type: "snapshot_summary", Data: map[string]interface{}{
		"snapshot_id": snapshotID,
		"cell_count":  cellCount,
		"fields":      fields,
	}})
}

// Stats reports the connected-client count and the number of events waiting
// in the broadcast queue.
func (b *Bridge) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]interface{}{
		"connected_clients": len(b.clients),
		"broadcast_queue":   len(b.broadcast),
	}
}
