// Package email defines the outbound message model shared by the SMTP client,
// the delivery providers, and the notification workflows.
package email

import (
	"fmt"
	"strings"
)

// Message is a single HTML email addressed to one recipient.
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
}

// Validate reports whether the message can be put on the wire. Header values
// are written verbatim, so line breaks in them are rejected.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("message is nil")
	}
	if m.From == "" {
		return fmt.Errorf("message has no sender")
	}
	if m.To == "" {
		return fmt.Errorf("message has no recipient")
	}
	for name, v := range map[string]string{"From": m.From, "To": m.To, "Subject": m.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%s header contains a line break", name)
		}
	}
	if strings.ContainsAny(m.From+m.To, "<>") {
		return fmt.Errorf("addresses must be bare, without angle brackets")
	}
	return nil
}
