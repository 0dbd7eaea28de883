// ABOUTME: Store interface and errors for the session-to-thread mapping.
// ABOUTME: Implementations: in-memory for single instances, SQLite for durable deployments.

package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no thread mapping exists for a session.
var ErrNotFound = errors.New("session not found")

// Store persists the mapping from an opaque session id to the durable
// thread id inside the conversation service. Mappings are only ever
// created or deleted, never mutated in place.
type Store interface {
	// Get returns the thread id for a session, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (string, error)
	// Put records the mapping for a session.
	Put(ctx context.Context, sessionID, threadID string) error
	// Delete removes the mapping. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// Close releases any resources held by the store.
	Close() error
}
