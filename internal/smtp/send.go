package smtp

import (
	"context"
	"strings"

	"github.com/shineum/bermail/internal/email"
)

// Send delivers one message over the authenticated session with
// MAIL FROM, RCPT TO and DATA.
//
// A refused step is returned as ErrDelivery carrying the server reply, and
// the transaction is reset so the next Send on the same Session starts
// clean. Transport failures make the Session unusable.
func (s *Session) Send(ctx context.Context, msg *email.Message) error {
	if s == nil || s.state != stateAuthenticated {
		return &Error{Kind: ErrDelivery, Command: "MAIL FROM", Err: errNotAuthenticated}
	}
	if err := msg.Validate(); err != nil {
		return &Error{Kind: ErrDelivery, Command: "MAIL FROM", Err: err}
	}

	err := s.transaction(ctx, msg)
	if err != nil && !s.broken {
		if _, rsetErr := s.command(ctx, ErrDelivery, "RSET", "RSET"); rsetErr != nil {
			s.logger.Debug("RSET after failed transaction failed", "error", rsetErr)
		}
	}
	return err
}

func (s *Session) transaction(ctx context.Context, msg *email.Message) error {
	if _, err := s.command(ctx, ErrDelivery, "MAIL FROM", "MAIL FROM:<"+msg.From+">"); err != nil {
		return err
	}
	if _, err := s.command(ctx, ErrDelivery, "RCPT TO", "RCPT TO:<"+msg.To+">"); err != nil {
		return err
	}
	if _, err := s.command(ctx, ErrDelivery, "DATA", "DATA"); err != nil {
		return err
	}

	lines := append(messageLines(msg), ".")
	if err := s.writeLines(ctx, ErrDelivery, "message body", lines); err != nil {
		return err
	}
	if _, err := s.read(ctx, ErrDelivery, "end of data"); err != nil {
		return err
	}

	s.logger.Debug("SMTP message accepted", "to", msg.To)
	return nil
}

// messageLines renders the literal header block, a blank line and the body.
// Body lines are split on LF with any trailing CR dropped, and lines starting
// with "." are dot-stuffed so the body can never end the DATA phase early.
func messageLines(msg *email.Message) []string {
	lines := []string{
		"From: " + msg.From,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"Content-Type: text/html; charset=UTF-8",
		"MIME-Version: 1.0",
		"",
	}

	if msg.HTMLBody == "" {
		return lines
	}

	body := strings.TrimSuffix(msg.HTMLBody, "\n")
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, ".") {
			line = "." + line
		}
		lines = append(lines, line)
	}
	return lines
}
