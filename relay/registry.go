package relay

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultWriteTimeout bounds a single viewer write during a broadcast so
// one stalled viewer cannot hold up the sweep indefinitely.
const DefaultWriteTimeout = 5 * time.Second

// Client is one connected viewer.
type Client struct {
	ID   string
	Addr string
	conn net.Conn
}

// Registry is the live set of viewer connections. Membership changes and
// broadcast sweeps are serialized by a single mutex; a connection present
// in the registry is assumed writable, and a failed write is the only thing
// that evicts it from the broadcast path.
type Registry struct {
	mu           sync.Mutex
	clients      map[string]*Client
	writeTimeout time.Duration
}

func NewRegistry(writeTimeout time.Duration) *Registry {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Registry{
		clients:      make(map[string]*Client),
		writeTimeout: writeTimeout,
	}
}

// Register adds conn to the live set. If initial is non-nil it is written
// to the new viewer before any broadcast can interleave with it; the write
// is best effort and a failure here does not evict the client, the next
// broadcast will.
func (r *Registry) Register(conn net.Conn, initial []byte) *Client {
	c := &Client{
		ID:   uuid.New().String(),
		Addr: conn.RemoteAddr().String(),
		conn: conn,
	}
	r.mu.Lock()
	r.clients[c.ID] = c
	n := len(r.clients)
	if initial != nil {
		conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
		if _, err := conn.Write(initial); err == nil {
			log.Printf("Sent cached frame (%d bytes) to %s", len(initial), c.Addr)
		}
	}
	r.mu.Unlock()
	log.Printf("Client connected: %s. Active clients: %d", c.Addr, n)
	return c
}

// Deregister removes c and closes its connection. It is idempotent; the
// viewer handler and the broadcast sweep may both try to remove the same
// client.
func (r *Registry) Deregister(c *Client) {
	r.mu.Lock()
	_, ok := r.clients[c.ID]
	if ok {
		delete(r.clients, c.ID)
	}
	n := len(r.clients)
	r.mu.Unlock()
	if ok {
		c.conn.Close()
		log.Printf("Client %s disconnected. Active clients: %d", c.Addr, n)
	}
}

// Broadcast writes f to every registered viewer. Clients whose write fails
// are closed and removed after the sweep, so a dead viewer never affects
// delivery to the others.
func (r *Registry) Broadcast(f []byte) {
	r.mu.Lock()
	var dead []*Client
	for _, c := range r.clients {
		c.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
		if _, err := c.conn.Write(f); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		delete(r.clients, c.ID)
		c.conn.Close()
		log.Printf("Client %s disconnected. Active clients: %d", c.Addr, len(r.clients))
	}
	r.mu.Unlock()
}

// Count returns the number of registered viewers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll closes every connection and empties the registry. Used at
// shutdown only.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	for id, c := range r.clients {
		c.conn.Close()
		delete(r.clients, id)
	}
	r.mu.Unlock()
}
