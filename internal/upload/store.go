package upload

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/lodestone-upload/pkg/types"
)

const tokenAttempts = 3

// Store maps upload tokens to live sessions. The store lock only guards the
// map; per session state is guarded by each session's own lock.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
}

// NewStore creates a store holding at most maxSessions sessions. Zero or a
// negative value means unbounded.
func NewStore(maxSessions int) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
	}
}

// Create registers a new OPEN session at offset zero under a fresh token
func (s *Store) Create(filename string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return nil, ErrCapacityExceeded
	}

	for attempt := 0; attempt < tokenAttempts; attempt++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("failed to generate upload token: %w", err)
		}
		token := id.String()
		if _, exists := s.sessions[token]; exists {
			continue
		}

		now := time.Now()
		session := &Session{
			Token:      token,
			Filename:   filename,
			StagePath:  stagePath(token),
			StartedAt:  now,
			status:     types.StatusOpen,
			digest:     sha256.New(),
			lastUpdate: now,
		}
		s.sessions[token] = session
		return session, nil
	}

	return nil, fmt.Errorf("failed to generate a unique upload token after %d attempts", tokenAttempts)
}

// Get returns the session registered under token
func (s *Store) Get(token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[token]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove forgets a session. Removing an unknown token is a no-op.
func (s *Store) Remove(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Len returns the number of sessions held, terminal ones included
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// All returns the sessions currently held in no particular order
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func stagePath(token string) string {
	return fmt.Sprintf("sessions/%s.part", token)
}
