// Package smtp implements a minimal SMTP submission client: one connection,
// STARTTLS or implicit TLS, AUTH LOGIN, and any number of single-recipient
// HTML messages before QUIT.
package smtp

import (
	"context"
	"encoding/base64"
)

// Authenticate performs AUTH LOGIN: the command, then the base64 username and
// the base64 password as standalone lines, each answered by the server.
// Any refusal is reported as ErrAuthentication.
func (s *Session) Authenticate(ctx context.Context, username, password string) error {
	if s == nil || s.state < stateGreeted || s.state == stateClosed {
		return &Error{Kind: ErrAuthentication, Command: "AUTH LOGIN", Err: errNotConnected}
	}

	if _, err := s.command(ctx, ErrAuthentication, "AUTH LOGIN", "AUTH LOGIN"); err != nil {
		return err
	}
	if _, err := s.command(ctx, ErrAuthentication, "AUTH LOGIN username", encodeCredential(username)); err != nil {
		return err
	}
	if _, err := s.command(ctx, ErrAuthentication, "AUTH LOGIN password", encodeCredential(password)); err != nil {
		return err
	}

	s.state = stateAuthenticated
	s.logger.Debug("SMTP authentication successful")
	return nil
}

func encodeCredential(v string) string {
	return base64.StdEncoding.EncodeToString([]byte(v))
}
