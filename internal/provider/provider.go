// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/bermail/internal/email"
)

// Provider opens delivery sessions against a backend (an SMTP relay, the
// SES API, stdout, ...).
type Provider interface {
	// Open establishes a session ready to send. The caller must Close it.
	Open(ctx context.Context) (Session, error)

	// Name returns the human-readable name of this provider.
	Name() string
}

// Session delivers messages until closed. A failed Send does not end the
// session; callers sending to several recipients keep going with the rest.
type Session interface {
	Send(ctx context.Context, msg *email.Message) error
	Close() error
}
