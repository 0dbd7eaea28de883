// ABOUTME: In-memory session store for single-instance deployments.
// ABOUTME: Process-local; mappings do not survive a restart.

package session

import (
	"context"
	"sync"
)

// MemoryStore implements Store with a process-local map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]string),
	}
}

// Get returns the thread id for a session, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threadID, ok := s.sessions[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return threadID, nil
}

// Put records the mapping for a session.
func (s *MemoryStore) Put(ctx context.Context, sessionID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = threadID
	return nil
}

// Delete removes the mapping for a session.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
