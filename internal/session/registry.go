// Package session implements SessionRegistry (C7): the live binding of
// userId to transport connection, single-login eviction, and idle
// detection. Grounded on internal/handlers/chat_handler.go's Hub
// (register/unregister handling, userConnections bookkeeping under a
// sync.RWMutex), generalized from one global lock to userId-mod-N shards
// per spec.md §9's suggested alternative, since Lookup is called on every
// fan-out and is far more frequent than Bind/Unbind.
package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const shardCount = 16

// Conn is the minimal transport surface SessionRegistry depends on; the
// Server supplies a concrete type wrapping *websocket.Conn.
type Conn interface {
	Send(frame string) error
	Close() error
}

type entry struct {
	conn           Conn
	lastActivityAt time.Time
}

type shard struct {
	mu     sync.RWMutex
	byUser map[int64]*entry
}

// Registry is the sharded SessionRegistry. Lookup/Bind/Unbind/Touch/
// SweepIdle route to one of shardCount shards by userId; the conn→userId
// reverse index used by Touch/RemoveConnection (keyed by the connection,
// not the user) stays a single map, since a transport only ever calls
// those two with the connection it owns and does not fan out across
// shards the way message delivery does.
type Registry struct {
	shards [shardCount]*shard

	connMu sync.RWMutex
	byConn map[Conn]int64

	logger *logrus.Logger
}

// New builds an empty Registry.
func New(logger *logrus.Logger) *Registry {
	r := &Registry{byConn: make(map[Conn]int64), logger: logger}
	for i := range r.shards {
		r.shards[i] = &shard{byUser: make(map[int64]*entry)}
	}
	return r
}

func (r *Registry) shardFor(userID int64) *shard {
	return r.shards[uint64(userID)%shardCount]
}

// Bind associates userID with conn. If a prior connection exists for
// userID, it is sent a "logged in elsewhere" notification and replaced;
// the evicted connection is returned so the caller can close it outside
// any lock, per spec.md §4.5.
func (r *Registry) Bind(userID int64, conn Conn) (evicted Conn, hadPrevious bool) {
	s := r.shardFor(userID)

	s.mu.Lock()
	prev, existed := s.byUser[userID]
	s.byUser[userID] = &entry{conn: conn, lastActivityAt: time.Now()}
	s.mu.Unlock()

	r.connMu.Lock()
	r.byConn[conn] = userID
	if existed {
		delete(r.byConn, prev.conn)
	}
	r.connMu.Unlock()

	if existed {
		if err := prev.conn.Send(kickedFrame); err != nil {
			r.logger.WithError(err).WithField("userId", userID).Debug("failed to notify evicted session")
		}
		return prev.conn, true
	}
	return nil, false
}

// kickedFrame is the literal ERROR frame sent to an evicted session; the
// wire-protocol error-message text is fixed by spec.md §8's boundary
// behavior ("logged in elsewhere").
const kickedFrame = "5:errorMsg=logged in elsewhere"

// Unbind removes userID's binding unconditionally.
func (r *Registry) Unbind(userID int64) {
	s := r.shardFor(userID)

	s.mu.Lock()
	e, ok := s.byUser[userID]
	if ok {
		delete(s.byUser, userID)
	}
	s.mu.Unlock()

	if ok {
		r.connMu.Lock()
		delete(r.byConn, e.conn)
		r.connMu.Unlock()
	}
}

// Lookup returns the live connection for userID, if any.
func (r *Registry) Lookup(userID int64) (Conn, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Touch refreshes the last-activity timestamp for conn's bound user, a
// no-op if conn is not currently bound.
func (r *Registry) Touch(conn Conn) {
	r.connMu.RLock()
	userID, ok := r.byConn[conn]
	r.connMu.RUnlock()
	if !ok {
		return
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	if e, ok := s.byUser[userID]; ok {
		e.lastActivityAt = time.Now()
	}
	s.mu.Unlock()
}

// RemoveConnection unbinds whatever user conn is currently bound to,
// called from the transport's disconnect callback. It is a no-op if a
// newer Bind has already replaced conn for that user (the reverse index
// would no longer point at conn).
func (r *Registry) RemoveConnection(conn Conn) (userID int64, ok bool) {
	r.connMu.RLock()
	userID, ok = r.byConn[conn]
	r.connMu.RUnlock()
	if !ok {
		return 0, false
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	if e, stillBound := s.byUser[userID]; stillBound && e.conn == conn {
		delete(s.byUser, userID)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if ok {
		r.connMu.Lock()
		if r.byConn[conn] == userID {
			delete(r.byConn, conn)
		}
		r.connMu.Unlock()
	}
	return userID, ok
}

// SweepIdle returns every connection whose last activity predates
// threshold. Callers (HeartbeatSupervisor) force-close each; the actual
// unbind happens when the transport reports the resulting disconnect.
func (r *Registry) SweepIdle(threshold time.Duration) []Conn {
	cutoff := time.Now().Add(-threshold)
	var idle []Conn
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.byUser {
			if e.lastActivityAt.Before(cutoff) {
				idle = append(idle, e.conn)
			}
		}
		s.mu.RUnlock()
	}
	return idle
}

// Count returns the total number of bound sessions, for metrics.
func (r *Registry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.byUser)
		s.mu.RUnlock()
	}
	return total
}
