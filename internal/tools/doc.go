// Package tools provides the local tool registry and the HTTP invoker
// that backs the built-in mailbox tools.
//
// # Registry
//
// Tools register a Definition (name, description, parameters) plus a
// Handler. Invoke validates required arguments before calling the
// handler, so handlers can assume their inputs are present. Definitions
// exports the registry in the conversation service's tool schema for
// agent creation.
//
// Registration happens once at startup; after that the registry is
// read-only and safe for concurrent Invoke calls.
//
// # Invoker
//
// Caller performs the outbound HTTP GET for a tool and always produces
// an Envelope {status_code, content, headers, url}, even on transport
// failure (synthetic status 599). The function key is appended to the
// request only; the envelope's URL field and any error text are scrubbed
// so the secret never leaves this package.
package tools
