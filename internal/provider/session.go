// Package provider manages per-tenant messaging sessions and serializes
// all outbound sends through one worker per session.
package provider

import (
	"context"
)

// Session is a live connection to the messaging provider for one tenant.
// Implementations wrap the actual provider client; Send must perform
// exactly one provider call and classify failures as *apperrors.DispatchError.
type Session interface {
	// AccountID returns the provider-assigned identifier of the session.
	AccountID() string
	// Send delivers one text message to the recipient JID and returns the
	// provider-assigned message id.
	Send(ctx context.Context, recipientJID, text string) (string, error)
}

// SendRequest is one outbound message handed to a session worker.
type SendRequest struct {
	RecipientJID string
	Text         string
}
