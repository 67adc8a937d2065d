package stdout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shineum/bermail/internal/email"
	"github.com/shineum/bermail/internal/provider"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestSend_BasicEmail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sess, err := NewWithWriter(&buf).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	msg := &email.Message{
		From:     "noreply@bermarket.ie",
		To:       "homeowner@example.com",
		Subject:  "Booking confirmed",
		HTMLBody: "<p>Your assessor is booked.</p>",
	}
	if err := sess.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"From: noreply@bermarket.ie\n",
		"To: homeowner@example.com\n",
		"Subject: Booking confirmed\n",
		"Body: 31 B\n",
		"<p>Your assessor is booked.</p>\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if !strings.HasPrefix(output, separator) {
		t.Error("output should start with separator line")
	}
	if !strings.HasSuffix(output, separator) {
		t.Error("output should end with separator line")
	}
}

func TestSend_InvalidMessage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sess, _ := NewWithWriter(&buf).Open(context.Background())

	if err := sess.Send(context.Background(), &email.Message{From: "a@example.com"}); err == nil {
		t.Error("expected error for message without recipient")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written, got %q", buf.String())
	}
}

func TestSend_WriteError(t *testing.T) {
	t.Parallel()

	sess, _ := NewWithWriter(failingWriter{}).Open(context.Background())
	err := sess.Send(context.Background(), &email.Message{From: "a@example.com", To: "b@example.com"})
	if err == nil {
		t.Error("expected write error, got nil")
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d): got %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	var p provider.Provider = New()
	if got := p.Name(); got != "stdout" {
		t.Errorf("Name(): got %q, want %q", got, "stdout")
	}
}
