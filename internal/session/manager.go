// ABOUTME: Maps opaque session ids to durable conversation threads.
// ABOUTME: Owns the mapping exclusively and serializes all work per session id.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpena225/azure-ai-mailbox-agent/internal/agents"
)

// ThreadService defines what the manager needs from the conversation
// service: thread creation on first use and deletion on reset.
type ThreadService interface {
	CreateThread(ctx context.Context) (*agents.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// Manager resolves session ids to thread ids, creating threads on first
// use. Turns within one session are strictly sequential: callers hold the
// session lock from Acquire for the full duration of a turn, which also
// makes resolve-or-create atomic per session.
type Manager struct {
	store   Store
	threads ThreadService
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a session manager over the given store and thread service.
func NewManager(store Store, threads ThreadService, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		threads: threads,
		logger:  logger.With("component", "session"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Acquire locks the session and returns its release function. A second
// turn for the same session blocks here until the prior turn's run has
// reached a terminal state and released the lock.
func (m *Manager) Acquire(sessionID string) func() {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	return lock.Unlock
}

// sessionLock returns the per-session mutex, creating it on first use.
// Locks are retained for the life of the process; the set is bounded by
// the number of distinct sessions.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}

// ResolveOrCreate returns the thread id for a session, creating a new
// thread via the conversation service on first use. Resolution of an
// existing session performs no external call. Callers must hold the
// session lock from Acquire.
func (m *Manager) ResolveOrCreate(ctx context.Context, sessionID string) (string, error) {
	threadID, err := m.store.Get(ctx, sessionID)
	if err == nil {
		return threadID, nil
	}
	if err != ErrNotFound {
		return "", fmt.Errorf("resolving session: %w", err)
	}

	thread, err := m.threads.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}

	if err := m.store.Put(ctx, sessionID, thread.ID); err != nil {
		return "", fmt.Errorf("recording session: %w", err)
	}

	m.logger.Info("thread created for session",
		"session_id", sessionID,
		"thread_id", thread.ID,
	)
	return thread.ID, nil
}

// Lookup returns the thread id for a session without creating one.
// Returns ErrNotFound when the session has no thread. Callers must hold
// the session lock from Acquire.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (string, error) {
	return m.store.Get(ctx, sessionID)
}

// Clear removes the session's mapping. A subsequent ResolveOrCreate with
// the same session id produces a fresh thread; deleted threads are never
// reused. The remote thread is deleted best-effort.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	release := m.Acquire(sessionID)
	defer release()

	threadID, err := m.store.Get(ctx, sessionID)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	// The mapping is gone either way; remote cleanup failures are logged,
	// not surfaced.
	if err := m.threads.DeleteThread(ctx, threadID); err != nil {
		m.logger.Warn("failed to delete remote thread",
			"session_id", sessionID,
			"thread_id", threadID,
			"error", err,
		)
	}

	m.logger.Info("session cleared", "session_id", sessionID, "thread_id", threadID)
	return nil
}
