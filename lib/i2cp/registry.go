package i2cp

import (
	"sync"

	common "github.com/go-i2p/common/data"
	"github.com/samber/oops"
)

// Session IDs that are never handed out.
const (
	sessionIDReserved  = 0x0000
	sessionIDBroadcast = SessionIDNone
)

// registry tracks live sessions by ID and the destinations they own.
type registry struct {
	mu       sync.RWMutex
	sessions map[uint16]*Session
	dests    map[common.Hash]uint16
	nextID   uint16
	epoch    uint64
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[uint16]*Session),
		dests:    make(map[common.Hash]uint16),
		nextID:   1,
	}
}

// sessionRef is a non-owning handle to a session. It resolves to nil once
// the session has left the registry, even if its ID was handed out again.
type sessionRef struct {
	reg   *registry
	id    uint16
	epoch uint64
}

func (r sessionRef) resolve() *Session {
	if r.reg == nil {
		return nil
	}
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()
	s, ok := r.reg.sessions[r.id]
	if !ok || s.epoch != r.epoch {
		return nil
	}
	return s
}

// create allocates a session ID and registers the session built for it.
func (r *registry) create(build func(id uint16, epoch uint64) *Session) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.allocateID()
	if !ok {
		return nil, oops.In("i2cp").Code("session_ids_exhausted").
			Wrapf(ErrResourceExhaustion, "no free session IDs among %d live sessions", len(r.sessions))
	}
	r.epoch++
	s := build(id, r.epoch)
	r.sessions[id] = s
	return s, nil
}

// allocateID must be called with mu held.
func (r *registry) allocateID() (uint16, bool) {
	start := r.nextID
	for {
		id := r.nextID
		r.nextID++
		if id != sessionIDReserved && id != sessionIDBroadcast {
			if _, exists := r.sessions[id]; !exists {
				return id, true
			}
		}
		if r.nextID == start {
			return 0, false
		}
	}
}

func (r *registry) get(id uint16) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove evicts the session with the given ID and any destination it
// claimed. It returns nil when the ID is not registered.
func (r *registry) remove(id uint16) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// removeExact is remove guarded by epoch, so a late teardown never evicts a
// newer session that reused the ID.
func (r *registry) removeExact(id uint16, epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; !ok || s.epoch != epoch {
		return false
	}
	return r.removeLocked(id) != nil
}

func (r *registry) removeLocked(id uint16) *Session {
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	for h, owner := range r.dests {
		if owner == id {
			delete(r.dests, h)
		}
	}
	return s
}

// claimDestination records id as the owner of h. It fails when another live
// session already owns h.
func (r *registry) claimDestination(h common.Hash, id uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.dests[h]; ok && owner != id {
		return false
	}
	if _, live := r.sessions[id]; !live {
		return false
	}
	r.dests[h] = id
	return true
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
