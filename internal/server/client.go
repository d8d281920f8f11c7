// Package server accepts WebSocket and TCP clients and maintains the shared
// client registry the dispatcher broadcasts into.
package server

import (
	"log/slog"
	"sync"

	"github.com/meshcore-dev/meshbridge/internal/bridge"
)

// Client is one attached consumer of the bridge. Send must be safe for
// concurrent use and must not block on slow peers longer than its deadline.
type Client interface {
	ID() string
	Kind() string
	Send(frame []byte) error
	Close() error
}

// Submitter is the command intake of the bridge queue.
type Submitter interface {
	Enqueue(frame []byte, source bridge.Source)
}

// Registry is the set of live clients. Writes to clients are best-effort: a
// failed write removes the client and is never surfaced to the radio side.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[Client]struct{}
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		clients: make(map[Client]struct{}),
	}
}

func (r *Registry) Add(c Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	total := len(r.clients)
	r.mu.Unlock()

	r.logger.Info("client attached", "kind", c.Kind(), "id", c.ID(), "total", total)
}

func (r *Registry) Remove(c Client) {
	r.mu.Lock()
	_, present := r.clients[c]
	delete(r.clients, c)
	total := len(r.clients)
	r.mu.Unlock()

	if present {
		r.logger.Info("client detached", "kind", c.Kind(), "id", c.ID(), "total", total)
	}
}

// Contains reports whether the client is still registered.
func (r *Registry) Contains(c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[c]
	return ok
}

// CountKind returns how many clients of one kind are attached.
func (r *Registry) CountKind(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for c := range r.clients {
		if c.Kind() == kind {
			n++
		}
	}
	return n
}

// Broadcast delivers a raw frame to every live client.
func (r *Registry) Broadcast(frame []byte) {
	r.mu.Lock()
	snapshot := make([]Client, 0, len(r.clients))
	for c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.Unlock()

	for _, c := range snapshot {
		if err := c.Send(frame); err != nil {
			r.logger.Warn("broadcast write failed, dropping client",
				"kind", c.Kind(), "id", c.ID(), "error", err)
			r.Remove(c)
			_ = c.Close()
		}
	}
}

// CloseAll disconnects every client, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	snapshot := make([]Client, 0, len(r.clients))
	for c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.clients = make(map[Client]struct{})
	r.mu.Unlock()

	for _, c := range snapshot {
		_ = c.Close()
	}
}
