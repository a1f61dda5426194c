package motor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closing")
)

const shardCount = 256

type sessionShard struct {
	sessions map[SessionID]*Session
	mu       sync.RWMutex
}

// Store maps session ids to live sessions. The shard mutexes only guard
// create, destroy and lookup; per-event updates happen on the session's own
// merge loop.
type Store struct {
	shards [shardCount]*sessionShard
}

func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &sessionShard{sessions: make(map[SessionID]*Session)}
	}
	return s
}

func (s *Store) shard(id SessionID) *sessionShard {
	return s.shards[xxhash.Sum64String(string(id))%shardCount]
}

// Create registers a fresh, empty session. Creating an id that is still live
// fails with ErrSessionExists.
func (s *Store) Create(id SessionID) (*Session, error) {
	shard := s.shard(id)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.sessions[id]; exists {
		return nil, fmt.Errorf("create %q: %w", id, ErrSessionExists)
	}

	session := newSession(id, time.Now())
	shard.sessions[id] = session
	return session, nil
}

func (s *Store) Get(id SessionID) (*Session, bool) {
	shard := s.shard(id)

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	session, ok := shard.sessions[id]
	return session, ok
}

// Destroy removes the session and cancels anything still running on its
// behalf. It reports whether the id was live.
func (s *Store) Destroy(id SessionID) bool {
	shard := s.shard(id)

	shard.mu.Lock()
	session, ok := shard.sessions[id]
	if ok {
		delete(shard.sessions, id)
	}
	shard.mu.Unlock()

	if ok {
		session.shutdown()
	}
	return ok
}

func (s *Store) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return n
}

// IDs returns the live session ids in sorted order.
func (s *Store) IDs() []SessionID {
	ids := make([]SessionID, 0)
	for _, shard := range s.shards {
		shard.mu.RLock()
		for id := range shard.sessions {
			ids = append(ids, id)
		}
		shard.mu.RUnlock()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// lookup reports whether target is still the live instance for its id, so
// completions addressed to a destroyed session cannot land on a successor
// created under the same id.
func (s *Store) lookup(target *Session) bool {
	current, ok := s.Get(target.ID)
	return ok && current == target
}
