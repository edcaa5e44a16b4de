package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/ocx/gridwalk/internal/metrics"
)

// Client is one connected peer: its socket, a self-reported PID, and a
// correlation handle used as the owner token. Handle is independent of PID
// so ownership checks don't trust client-supplied identifiers alone.
type Client struct {
	Handle uuid.UUID
	Conn   net.Conn
	PID    uint32
}

// Registry is the connected-client set, guarded by its own mutex — never the
// same lock as State, and never held during a blocking socket write to a
// peer (callers pass Broadcast, below, a function that uses
// protocol.SendBestEffort while the lock is held).
type Registry struct {
	mu       sync.Mutex
	capacity int
	clients  map[uuid.UUID]*Client
	owner    uuid.UUID
	hasOwner bool
}

// NewRegistry builds a registry bounded to capacity connections (spec.md
// requires capacity >= 16 for the corpus baseline).
func NewRegistry(capacity int) *Registry {
	if capacity < 16 {
		capacity = 16
	}
	return &Registry{
		capacity: capacity,
		clients:  make(map[uuid.UUID]*Client),
	}
}

// Register admits a new client, assigning ownership if none is currently
// held. Returns an error if the registry is at capacity.
func (r *Registry) Register(conn net.Conn, pid uint32) (*Client, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.capacity {
		return nil, false, fmt.Errorf("server: client registry at capacity (%d)", r.capacity)
	}

	c := &Client{Handle: uuid.New(), Conn: conn, PID: pid}
	r.clients[c.Handle] = c
	metrics.ConnectedClients.Set(float64(len(r.clients)))

	becameOwner := false
	if !r.hasOwner {
		r.owner = c.Handle
		r.hasOwner = true
		becameOwner = true
	}
	return c, becameOwner, nil
}

// Remove drops a client from the registry. If it held ownership, ownership
// is cleared so the next Register call assigns a fresh owner.
func (r *Registry) Remove(handle uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, handle)
	metrics.ConnectedClients.Set(float64(len(r.clients)))
	if r.hasOwner && r.owner == handle {
		r.hasOwner = false
		r.owner = uuid.Nil
	}
}

// CanControl implements client_can_control: true iff no owner is set (first
// arrival grace, shouldn't normally occur post-Register) or handle is owner.
func (r *Registry) CanControl(handle uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.hasOwner || r.owner == handle
}

// HasOwner reports whether an owner is currently assigned.
func (r *Registry) HasOwner() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasOwner
}

// Broadcast invokes fn for every registered client's connection. fn is
// expected to use a non-blocking send so a stuck peer cannot stall the
// iteration or the caller (the simulation loop, typically).
func (r *Registry) Broadcast(fn func(conn net.Conn)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		fn(c.Conn)
	}
}

// Count returns the number of currently connected clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
