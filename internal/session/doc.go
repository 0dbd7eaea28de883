// Package session maps browser sessions to conversation threads.
//
// A Store persists the session-to-thread mapping (in-memory or SQLite).
// The Manager layers thread creation and per-session locking on top:
// Acquire hands out a mutex held for a whole turn, so concurrent
// requests from one session serialize and never race thread creation,
// while different sessions proceed independently.
package session
