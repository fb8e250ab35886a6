package signaling

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// connection is the registry's record of one live signaling session.
type connection struct {
	queue        *sendQueue
	lastActivity time.Time

	// peers holds the identities this connection currently considers
	// connected. The relation is symmetric and is only ever mutated with the
	// registry write lock held, so both sides update atomically.
	peers map[uint64]struct{}
}

// registry is the process-wide directory of live connections. It is the only
// mutable structure shared between the read loops, the per-connection timers,
// and the dispatchers, and a single RWMutex guards all of it.
type registry struct {
	clock func() time.Time

	mu    sync.RWMutex
	conns map[uint64]*connection
}

func newRegistry(clock func() time.Time) *registry {
	if clock == nil {
		clock = time.Now
	}
	return &registry{
		clock: clock,
		conns: make(map[uint64]*connection),
	}
}

// register inserts a new record. Identities are allocated once and never
// reused, so a duplicate insert can only mean broken allocation logic.
func (r *registry) register(id uint64, q *sendQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		panic(fmt.Sprintf("signaling: duplicate registration for connection %d", id))
	}
	r.conns[id] = &connection{
		queue:        q,
		lastActivity: r.clock(),
		peers:        make(map[uint64]struct{}),
	}
}

// touch refreshes the liveness timestamp. A missing id means the connection
// was already removed; the update is simply lost.
func (r *registry) touch(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.lastActivity = r.clock()
	}
}

func (r *registry) lastActivity(id uint64) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return time.Time{}, false
	}
	return c.lastActivity, true
}

// unregister removes and returns the record. It is idempotent; the second
// call for an id reports false.
func (r *registry) unregister(id uint64) (*connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	// Drop the removed id from every surviving peer set so the symmetric
	// relation never names a dead connection.
	for peerID := range c.peers {
		if peer, ok := r.conns[peerID]; ok {
			delete(peer.peers, id)
		}
	}
	return c, true
}

func (r *registry) lookup(id uint64) (*sendQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return c.queue, true
}

// pair records that a and b consider each other connected. Both sides are
// updated under one critical section; if either side is already gone, only
// the surviving side is updated.
func (r *registry) pair(a, b uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ca, ok := r.conns[a]; ok {
		ca.peers[b] = struct{}{}
	}
	if cb, ok := r.conns[b]; ok {
		cb.peers[a] = struct{}{}
	}
}

func (r *registry) unpair(a, b uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ca, ok := r.conns[a]; ok {
		delete(ca.peers, b)
	}
	if cb, ok := r.conns[b]; ok {
		delete(cb.peers, a)
	}
}

// peers returns the ids currently paired with id.
func (r *registry) peers(id uint64) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(c.peers))
	for peerID := range c.peers {
		out = append(out, peerID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// roster returns the live identities in ascending order. The order is stable
// within one call; callers must not assume stability across calls.
func (r *registry) roster() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked()
}

func (r *registry) rosterLocked() []uint64 {
	ids := make([]uint64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// broadcastRoster enqueues a UserList frame to every live connection. The
// snapshot and the fan-out happen under one read lock so a membership change
// cannot interleave: every recipient sees the same roster, and no just-added
// or just-removed connection is missed.
func (r *registry) broadcastRoster() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.rosterLocked()
	users := make([]user, len(ids))
	for i, id := range ids {
		users[i] = user{ID: id, Name: fmt.Sprintf("User %d", id)}
	}
	data := encodeUserList(users)
	for _, id := range ids {
		r.conns[id].queue.enqueue(frame{kind: frameText, payload: data})
	}
}
