package relay

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps live connections to the producer half of their outbox.
// All access goes through a single mutex that is never held during I/O.
type Registry struct {
	mu    sync.Mutex
	peers map[ConnectionID]Sender
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[ConnectionID]Sender)}
}

// Register adds id. Registering an id twice is a programming error and
// panics instead of replacing the existing sender.
func (r *Registry) Register(id ConnectionID, sender Sender) {
	if sender == nil {
		panic(fmt.Sprintf("relay: nil sender registered for connection %d", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; exists {
		panic(fmt.Sprintf("relay: connection %d registered twice", id))
	}
	r.peers[id] = sender
}

// Deregister removes id and reports whether it was present.
func (r *Registry) Deregister(id ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; !exists {
		return false
	}
	delete(r.peers, id)
	return true
}

// SnapshotExcluding copies every sender except the one owned by id, in
// ascending id order. The returned slice is safe to use after the lock is
// released.
func (r *Registry) SnapshotExcluding(id ConnectionID) []Sender {
	r.mu.Lock()
	ids := make([]ConnectionID, 0, len(r.peers))
	for peerID := range r.peers {
		if peerID != id {
			ids = append(ids, peerID)
		}
	}
	slices.Sort(ids)

	senders := make([]Sender, len(ids))
	for i, peerID := range ids {
		senders[i] = r.peers[peerID]
	}
	r.mu.Unlock()

	return senders
}

// Snapshot copies every registered sender.
func (r *Registry) Snapshot() []Sender {
	// Ids start at 1, so 0 never matches a registered connection.
	return r.SnapshotExcluding(0)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.peers[id]
	return exists
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
