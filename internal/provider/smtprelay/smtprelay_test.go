package smtprelay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shineum/bermail/internal/email"
	"github.com/shineum/bermail/internal/provider"
	"github.com/shineum/bermail/internal/smtp"
	"github.com/shineum/bermail/internal/smtptest"
)

func relayConfig(srv *smtptest.Server) Config {
	return Config{
		SMTP: smtp.Config{
			Host:    srv.Host(),
			Port:    srv.Port(),
			Timeout: 2 * time.Second,
			TLSMode: smtp.TLSNone,
		},
		Username: "mailer",
		Password: "s3cret",
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	var p provider.Provider = New(Config{})
	if got := p.Name(); got != "smtp" {
		t.Errorf("Name(): got %q, want %q", got, "smtp")
	}
}

func TestOpen_SendsThroughRelay(t *testing.T) {
	t.Parallel()

	srv := smtptest.Start(t, smtptest.Config{Replies: []string{
		"220 relay.test ESMTP",
		"250 relay.test",
		"334 VXNlcm5hbWU6", "334 UGFzc3dvcmQ6", "235 OK",
		"250 OK", "250 OK", "354 go", "250 queued",
		"221 Bye",
	}})

	ctx := context.Background()
	sess, err := New(relayConfig(srv)).Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = sess.Send(ctx, &email.Message{
		From:     "noreply@bermarket.ie",
		To:       "homeowner@example.com",
		Subject:  "Hello",
		HTMLBody: "<p>Hi</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	srv.Wait()

	if got := len(srv.Messages()); got != 1 {
		t.Errorf("messages: got %d, want 1", got)
	}
}

func TestOpen_AuthFailureClosesSession(t *testing.T) {
	t.Parallel()

	srv := smtptest.Start(t, smtptest.Config{Replies: []string{
		"220 relay.test ESMTP",
		"250 relay.test",
		"535 5.7.8 Bad credentials",
		"221 Bye",
	}})

	sess, err := New(relayConfig(srv)).Open(context.Background())
	if !errors.Is(err, smtp.ErrAuthentication) {
		t.Fatalf("Open error: got %v, want ErrAuthentication", err)
	}
	if sess != nil {
		t.Error("session should be nil on failure")
	}
	srv.Wait()

	if !srv.Sent("QUIT") {
		t.Error("QUIT was not sent after failed authentication")
	}
}

func TestOpen_ConnectFailure(t *testing.T) {
	t.Parallel()

	srv := smtptest.Start(t, smtptest.Config{Replies: []string{"421 4.3.2 Service not available"}})

	_, err := New(relayConfig(srv)).Open(context.Background())
	if !errors.Is(err, smtp.ErrConnection) {
		t.Fatalf("Open error: got %v, want ErrConnection", err)
	}
	srv.Wait()
}
