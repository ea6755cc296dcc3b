// Package email fetches candidate shipping emails from a mailbox
// provider. The only implementation is Gmail; MailClient keeps the sync
// worker testable without network access.
package email

import (
	"context"
	"errors"
	"time"
)

// ErrAuthExpired indicates the mailbox credentials no longer work and the
// user must re-authorize; retrying without new credentials is pointless.
var ErrAuthExpired = errors.New("email: authorization expired")

// RawMessage is one email as fetched from the provider, body already
// decoded but not yet cleaned.
type RawMessage struct {
	ID       string
	ThreadID string
	Subject  string
	From     string
	Date     time.Time
	Snippet  string
	// BodyHTML is preferred when present; BodyText is the plain-text
	// alternative part.
	BodyHTML string
	BodyText string
}

// Body returns the richest body variant available, falling back to the
// provider snippet.
func (m *RawMessage) Body() string {
	if m.BodyHTML != "" {
		return m.BodyHTML
	}
	if m.BodyText != "" {
		return m.BodyText
	}
	return m.Snippet
}

// MailClient lists and fetches messages from a mailbox.
type MailClient interface {
	// Search returns message IDs matching the provider query, newest
	// first, up to max.
	Search(ctx context.Context, query string, max int64) ([]string, error)
	// Fetch retrieves one full message by ID.
	Fetch(ctx context.Context, id string) (*RawMessage, error)
}
