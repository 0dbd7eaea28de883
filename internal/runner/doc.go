// Package runner drives one conversational turn to completion.
//
// Driver.Run appends the user message to a thread, starts a run, and
// polls the run until it reaches a terminal status. When the run stops
// in requires_action, every pending tool call is serviced concurrently
// through the tool registry and all outputs are submitted back in a
// single call; a run may raise any number of such episodes before
// finishing.
//
// Tool dispatch problems (unknown tool, malformed arguments) do not
// fail the turn: they are encoded as error envelopes and handed to the
// agent, which decides how to react. Only run-level failures (failed,
// cancelled, expired, timeout) surface as ErrRunFailed.
package runner
