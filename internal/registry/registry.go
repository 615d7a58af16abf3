// Package registry maps authenticated identities to their single live session.
package registry

import (
	"sort"
	"sync"
)

// Registry holds at most one session per identity. A later Put for the same
// identity replaces the earlier session (last-authenticated-wins).
//
// S is compared by ==, so it is normally a pointer type.
type Registry[S comparable] struct {
	mu      sync.RWMutex
	entries map[string]S
}

// New creates an empty registry.
func New[S comparable]() *Registry[S] {
	return &Registry[S]{entries: make(map[string]S)}
}

// Put binds identity to session and returns the session it replaced, if any.
func (r *Registry[S]) Put(identity string, session S) (prev S, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced = r.entries[identity]
	r.entries[identity] = session
	return prev, replaced
}

// Get returns the session bound to identity.
func (r *Registry[S]) Get(identity string) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.entries[identity]
	return s, ok
}

// Remove deletes the entry for identity only if it still holds session.
// A session that was replaced by a newer one cannot evict its successor.
func (r *Registry[S]) Remove(identity string, session S) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[identity]
	if !ok || current != session {
		return false
	}
	delete(r.entries, identity)
	return true
}

// Identities returns the registered identities in sorted order.
func (r *Registry[S]) Identities() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Entry is one identity/session pair of a snapshot.
type Entry[S comparable] struct {
	Identity string
	Session  S
}

// Snapshot returns a copy of all entries, sorted by identity.
func (r *Registry[S]) Snapshot() []Entry[S] {
	r.mu.RLock()
	out := make([]Entry[S], 0, len(r.entries))
	for id, s := range r.entries {
		out = append(out, Entry[S]{Identity: id, Session: s})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Len returns the number of registered identities.
func (r *Registry[S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
