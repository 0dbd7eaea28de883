// ABOUTME: The two production data-retrieval tools: mailbox lookup and message-trace lookup.
// ABOUTME: Both are HTTP GET functions against configured endpoints sharing one function key.

package tools

import "context"

// Tool names the agent dispatches on.
const (
	ToolGetMailbox      = "get_mailbox"
	ToolGetEmailDetails = "get_email_details"
)

// RegisterMailboxTools registers the mailbox and message-trace lookups
// against the given caller and endpoint URLs.
func RegisterMailboxTools(r *Registry, c *Caller, mailboxURL, messageTraceURL string) error {
	err := r.Register(Definition{
		Name:        ToolGetMailbox,
		Description: "Gets information about a user's mailbox.",
		Params: []Param{
			{Name: "name", Description: "The email address of the user.", Required: true},
		},
	}, func(ctx context.Context, args map[string]string) *Envelope {
		return c.Call(ctx, mailboxURL, map[string]string{"name": args["name"]})
	})
	if err != nil {
		return err
	}

	return r.Register(Definition{
		Name:        ToolGetEmailDetails,
		Description: "Gets message trace details for an email subject that was sent to a user.",
		Params: []Param{
			{Name: "subject", Description: "The subject of the email.", Required: true},
		},
	}, func(ctx context.Context, args map[string]string) *Envelope {
		return c.Call(ctx, messageTraceURL, map[string]string{"subject": args["subject"]})
	})
}
