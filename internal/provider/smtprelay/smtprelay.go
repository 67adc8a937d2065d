// Package smtprelay implements a Provider that submits mail to an SMTP relay
// with the minimal smtp client.
package smtprelay

import (
	"context"
	"fmt"

	"github.com/shineum/bermail/internal/provider"
	"github.com/shineum/bermail/internal/smtp"
)

// Config holds the relay connection settings and the AUTH LOGIN credentials.
type Config struct {
	SMTP     smtp.Config
	Username string
	Password string
}

// Provider opens one authenticated smtp.Session per Open.
type Provider struct {
	config Config
}

// New creates a relay Provider.
func New(cfg Config) *Provider {
	return &Provider{config: cfg}
}

// Open connects and authenticates. On authentication failure the partially
// established session is closed before the error is returned.
func (p *Provider) Open(ctx context.Context) (provider.Session, error) {
	sess, err := smtp.Connect(ctx, p.config.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP relay: %w", err)
	}

	if err := sess.Authenticate(ctx, p.config.Username, p.config.Password); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to authenticate with SMTP relay: %w", err)
	}

	return sess, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}
