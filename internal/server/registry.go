package server

import (
	"errors"
	"sync"
)

// ErrDuplicateAddress is returned by Insert when a live entry already exists
// for the remote address. Under correct teardown ordering this cannot happen
// for TCP (the old ip:port must be removed before the kernel reuses it), so an
// occurrence points at a registry bug and must never be papered over by an
// overwrite.
var ErrDuplicateAddress = errors.New("registry: duplicate remote address")

// Entry is one element of a registry snapshot. Index is the position in
// registration order and is only meaningful for the snapshot it came from.
type Entry struct {
	Index int
	Addr  string
	Conn  *Conn
}

// Registry is the authoritative set of currently-live connections, keyed by
// remote address. All mutations and reads are serialized under one mutex so a
// snapshot is always consistent with some order of completed inserts/removes.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Insert adds a connection under its remote address. It never overwrites: a
// colliding address yields ErrDuplicateAddress and the existing entry stays.
func (r *Registry) Insert(addr string, conn *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[addr]; exists {
		return ErrDuplicateAddress
	}
	r.conns[addr] = conn
	r.order = append(r.order, addr)
	return nil
}

// Remove deletes the entry for addr. Removing an absent address is a no-op,
// not an error: a failed operator send and the connection's own teardown may
// both try to clean up the same entry.
func (r *Registry) Remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[addr]; !exists {
		return
	}
	delete(r.conns, addr)
	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns the live entries in registration order. Indexed addressing
// resolves against one snapshot, so "index 2" stays the same connection for
// the duration of a single command regardless of concurrent churn.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.order))
	for i, addr := range r.order {
		entries = append(entries, Entry{Index: i, Addr: addr, Conn: r.conns[addr]})
	}
	return entries
}

// Len returns the number of currently-registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
