package chat

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Entry pairs a registered connection with its username.
type Entry struct {
	Peer     Peer
	Username string

	seq uint64
}

// Registry is the set of connections that completed username negotiation.
// Usernames are unique and non-empty; a Peer appears at most once.
type Registry struct {
	mu     sync.RWMutex
	byPeer map[Peer]*Entry
	byName map[string]*Entry
	seq    uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPeer: make(map[Peer]*Entry),
		byName: make(map[string]*Entry),
	}
}

// Add registers peer under username. The existence check and the insert
// happen under one lock, so of two concurrent Adds for the same name exactly
// one succeeds. It returns false when the name is empty or taken, or the peer
// is already registered.
func (r *Registry) Add(peer Peer, username string) bool {
	if username == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[username]; taken {
		return false
	}
	if _, present := r.byPeer[peer]; present {
		return false
	}

	r.seq++
	entry := &Entry{Peer: peer, Username: username, seq: r.seq}
	r.byPeer[peer] = entry
	r.byName[username] = entry
	return true
}

// Remove unregisters peer and returns its entry. Removing an unknown peer is
// a no-op.
func (r *Registry) Remove(peer Peer) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byPeer[peer]
	if !ok {
		return Entry{}, false
	}
	delete(r.byPeer, peer)
	delete(r.byName, entry.Username)
	return *entry, true
}

// Contains reports whether username is registered. Matching is exact.
func (r *Registry) Contains(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byName[username]
	return ok
}

// Lookup returns the username registered for peer.
func (r *Registry) Lookup(peer Peer) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byPeer[peer]
	if !ok {
		return "", false
	}
	return entry.Username, true
}

// Snapshot returns a copy of the registered entries in join order. The copy
// is safe to iterate while the registry keeps changing.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := lo.Map(lo.Values(r.byPeer), func(e *Entry, _ int) Entry {
		return *e
	})
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return entries
}

// Usernames returns the registered usernames in join order.
func (r *Registry) Usernames() []string {
	return lo.Map(r.Snapshot(), func(e Entry, _ int) string {
		return e.Username
	})
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPeer)
}
