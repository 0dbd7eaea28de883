// Package web serves the mailbox chat UI and its JSON API.
//
// # Routes
//
//   - GET  /            chat page (embedded template)
//   - POST /chat        run one turn, returns the reply plus optional chart
//   - POST /clear       drop the session's thread
//   - GET  /health      liveness and backend readiness
//   - GET  /api/history thread history for the caller's session
//
// # Sessions
//
// The session ID rides in an HS256-signed JWT cookie. A missing or
// tampered cookie silently becomes a fresh session; nothing about the
// old thread leaks to the forger. Each /chat request holds the session
// lock from thread resolution through run completion, so turns from one
// browser serialize.
//
// # Degraded mode
//
// When the agent backend failed to initialize at startup the server
// still comes up: /health reports the condition and /chat refuses with
// a fixed error, which keeps the failure observable instead of a crash
// loop.
package web
