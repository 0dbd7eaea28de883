// Package agents provides the REST client and wire types for the remote
// agent conversation service.
//
// # Overview
//
// The conversation service exposes agents, threads, messages, and runs.
// This package maps those resources onto Go types and a thin HTTP client:
//
//   - Client: authenticated REST calls with api-version pinning
//   - Run / RunStatus: the run lifecycle state machine
//   - Message / MessageContent: thread history entries
//   - RequiredAction / ToolCall: pending tool work raised by a run
//
// # Message content
//
// The service is inconsistent about the shape of message content: it can
// be a plain string, a sequence of typed blocks, or an object. MessageContent
// resolves the shape once, at decode time, into a closed set of kinds
// (ContentText, ContentSequence, ContentOpaque). Consumers switch on Kind
// instead of probing raw JSON.
//
// ExtractText recovers a best-effort plain-text reply from any shape and
// never fails; unreadable content degrades to a fixed placeholder.
//
// # Errors
//
// Missing resources map to ErrNotFound. Other non-2xx responses surface
// as errors carrying the remote status code plus the code and message
// decoded from the service's error envelope.
package agents
