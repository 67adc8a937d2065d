package smtp

import (
	"errors"
	"strconv"
	"strings"
)

// Error kinds. Every error returned by a Session matches exactly one of the
// first three with errors.Is; ErrTimeout additionally matches when the server
// did not answer within the configured bound.
var (
	ErrConnection     = errors.New("smtp: connection failed")
	ErrAuthentication = errors.New("smtp: authentication failed")
	ErrDelivery       = errors.New("smtp: delivery failed")
	ErrTimeout        = errors.New("smtp: server did not respond in time")
)

var (
	errNotConnected     = errors.New("session is not connected")
	errNotAuthenticated = errors.New("session is not authenticated")
	errSessionBroken    = errors.New("session transport is unusable after an earlier failure")
	errMalformedReply   = errors.New("malformed reply")
)

// Error describes a failed step of the SMTP dialogue.
type Error struct {
	// Kind is one of ErrConnection, ErrAuthentication or ErrDelivery.
	Kind error

	// Command names the step that failed, e.g. "EHLO" or "RCPT TO".
	// Credential lines are reported as "AUTH LOGIN username/password",
	// never by their content.
	Command string

	// Reply is the raw server reply, empty when the failure was local
	// or on the transport.
	Reply string

	// Timeout is set when no reply arrived within the per-command bound.
	Timeout bool

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Command != "" {
		b.WriteString(" during ")
		b.WriteString(e.Command)
	}
	if e.Timeout {
		b.WriteString(": timed out")
	}
	if e.Reply != "" {
		b.WriteString(": server replied ")
		b.WriteString(strconv.Quote(e.Reply))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the error kind, and ErrTimeout for timed out reads.
func (e *Error) Is(target error) bool {
	return target == e.Kind || (e.Timeout && target == ErrTimeout)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the three digit reply code, or 0 if the reply carries none.
func (e *Error) Code() int {
	return replyCode(e.Reply)
}

// replyCode parses the leading three digits of a reply.
func replyCode(reply string) int {
	if len(reply) < 3 {
		return 0
	}
	code, err := strconv.Atoi(reply[:3])
	if err != nil {
		return 0
	}
	return code
}

// isFailure classifies a reply by its first byte: 4xx and 5xx are failures,
// 1xx to 3xx are success or continue. Anything else is treated as a failure
// since it cannot be a reply at all.
func isFailure(reply string) bool {
	if reply == "" {
		return true
	}
	switch reply[0] {
	case '1', '2', '3':
		return false
	default:
		return true
	}
}
