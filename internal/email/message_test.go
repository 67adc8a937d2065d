package email

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Message{
		From:     "noreply@example.com",
		To:       "homeowner@example.com",
		Subject:  "Booking accepted",
		HTMLBody: "<p>Hi</p>",
	}

	tests := []struct {
		name    string
		mutate  func(m *Message)
		wantErr string
	}{
		{name: "valid", mutate: func(m *Message) {}},
		{name: "empty body", mutate: func(m *Message) { m.HTMLBody = "" }},
		{name: "no sender", mutate: func(m *Message) { m.From = "" }, wantErr: "no sender"},
		{name: "no recipient", mutate: func(m *Message) { m.To = "" }, wantErr: "no recipient"},
		{name: "subject injection", mutate: func(m *Message) { m.Subject = "Hi\r\nBcc: x@example.com" }, wantErr: "Subject header"},
		{name: "recipient injection", mutate: func(m *Message) { m.To = "a@example.com\nb@example.com" }, wantErr: "To header"},
		{name: "angle brackets", mutate: func(m *Message) { m.To = "<a@example.com>" }, wantErr: "angle brackets"},
	}

	for _, tt := range tests {
		tt := tt // per-iteration copy (pre-Go 1.22 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := valid
			tt.mutate(&m)

			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate(): unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate(): got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NilMessage(t *testing.T) {
	t.Parallel()

	var m *Message
	if err := m.Validate(); err == nil {
		t.Error("expected error for nil message, got nil")
	}
}
