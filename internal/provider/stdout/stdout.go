// Package stdout implements a Provider that prints emails to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/bermail/internal/email"
	"github.com/shineum/bermail/internal/provider"
)

const separator = "========================================\n"

// Provider prints email messages in a human-readable format, for local
// development without a relay.
type Provider struct {
	mu sync.Mutex
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Open returns a session printing to the provider's writer.
func (p *Provider) Open(_ context.Context) (provider.Session, error) {
	return &session{provider: p}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

type session struct {
	provider *Provider
}

// Send prints the message. Invalid messages are rejected the same way a
// real backend would reject them.
func (s *session) Send(_ context.Context, msg *email.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	var b strings.Builder
	b.WriteString(separator)
	b.WriteString(fmt.Sprintf("From: %s\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	b.WriteString(fmt.Sprintf("Body: %s\n", formatSize(len(msg.HTMLBody))))
	b.WriteString(msg.HTMLBody)
	if !strings.HasSuffix(msg.HTMLBody, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(separator)

	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	if _, err := fmt.Fprint(s.provider.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	return nil
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
