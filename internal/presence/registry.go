package presence

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry is the in-memory source of truth for "is this user online". It
// maps a user identity to the connection handle of their most recent live
// connection. One handle per identity: a second join for the same identity
// replaces the previous handle (last-join-wins), so only the newest
// connection receives directed events.
//
// Entries are ephemeral and never persisted. The registry owns its own
// synchronization; callers use only the exported operations.
type Registry struct {
	mu         sync.RWMutex
	handles    map[string]string // identity -> connection handle
	identities map[string]string // connection handle -> identity
	logger     *slog.Logger
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		handles:    make(map[string]string),
		identities: make(map[string]string),
		logger:     slog.Default().With("service", "presence"),
	}
}

// Join registers the active connection handle for an identity, replacing any
// previous handle. The identity is online from this point on.
func (r *Registry) Join(identity, handle string) {
	if identity == "" || handle == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.handles[identity]; ok && prev != handle {
		delete(r.identities, prev)
		r.logger.Debug("replacing presence handle", "identity", identity)
	}
	r.handles[identity] = handle
	r.identities[handle] = identity
}

// Leave removes the entry for the given connection handle and returns the
// identity that owned it. Handles that were never registered, or were already
// replaced by a newer join, report ("", false); that is a no-op, not an error.
func (r *Registry) Leave(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[handle]
	if !ok {
		return "", false
	}
	delete(r.identities, handle)
	if r.handles[identity] == handle {
		delete(r.handles, identity)
	}
	return identity, true
}

// IsOnline reports whether the identity currently has a live connection.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[identity]
	return ok
}

// HandleFor returns the connection handle to target when delivering an event
// to the identity's group.
func (r *Registry) HandleFor(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[identity]
	return handle, ok
}

// Online returns the currently online identities, sorted for stable output.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.handles))
	for identity := range r.handles {
		result = append(result, identity)
	}
	sort.Strings(result)
	return result
}
