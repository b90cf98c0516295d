package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/minus-twelve/geoquest/types"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already exists")
)

// MemoryStore keeps sessions in process memory. Sessions are copied in and
// out so callers never share the stored slice or map.
type MemoryStore struct {
	sessions    map[string]types.Session
	mutex       sync.RWMutex
	maxSessions int
}

// NewMemoryStore creates a store. maxSessions > 0 bounds the store by
// evicting the least recently active session; 0 means unbounded.
func NewMemoryStore(maxSessions int) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]types.Session),
		maxSessions: maxSessions,
	}
}

func (s *MemoryStore) Create(_ context.Context, id string, session types.Session) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.sessions[id]; exists {
		return ErrDuplicateSession
	}

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		delete(s.sessions, s.findOldestSession())
	}

	s.sessions[id] = session.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (types.Session, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return types.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Put replaces the stored session. The last writer wins.
func (s *MemoryStore) Put(_ context.Context, id string, session types.Session) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return ErrSessionNotFound
	}
	s.sessions[id] = session.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.sessions, id)
	return nil
}

// Cleanup drops sessions idle for longer than ttl.
func (s *MemoryStore) Cleanup(_ context.Context, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		if now.Sub(session.LastActivity) > ttl {
			delete(s.sessions, id)
		}
	}
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) findOldestSession() string {
	var oldestID string
	var oldestTime time.Time

	for id, sess := range s.sessions {
		if oldestID == "" || sess.LastActivity.Before(oldestTime) {
			oldestID = id
			oldestTime = sess.LastActivity
		}
	}
	return oldestID
}
