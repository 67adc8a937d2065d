package smtp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// Session states. Transitions only move forward; any failure before
// stateAuthenticated ends the attempt.
const (
	stateUnconnected = iota
	stateGreeted
	stateTLSUpgraded
	stateAuthenticated
	stateClosed
)

// implicitTLSPort is the submissions port, encrypted from the first byte.
const implicitTLSPort = 465

// defaultTimeout bounds every command/reply exchange.
const defaultTimeout = 30 * time.Second

const defaultLocalName = "localhost"

// maxReplyLine bounds a single reply line, CRLF included (RFC 5321 text
// line limit).
const maxReplyLine = 1000

// TLSMode selects how the transport gets encrypted.
type TLSMode string

const (
	// TLSAuto picks TLSImplicit on port 465 and TLSStartTLS everywhere else.
	TLSAuto     TLSMode = "auto"
	TLSImplicit TLSMode = "implicit"
	TLSStartTLS TLSMode = "starttls"
	// TLSNone keeps the connection in plaintext, for local relays only.
	TLSNone TLSMode = "none"
)

// ParseTLSMode converts a configuration string into a TLSMode.
// The empty string maps to TLSAuto.
func ParseTLSMode(s string) (TLSMode, error) {
	switch mode := TLSMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return TLSAuto, nil
	case TLSAuto, TLSImplicit, TLSStartTLS, TLSNone:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown TLS mode %q (want auto, implicit, starttls or none)", s)
	}
}

// Config holds the connection settings for a Session.
type Config struct {
	Host string
	Port int

	// LocalName is the identity sent with EHLO. Defaults to "localhost".
	LocalName string

	// Timeout bounds each command/reply exchange, the TCP dial and the
	// TLS handshake. Defaults to 30 seconds.
	Timeout time.Duration

	TLSMode TLSMode

	// TLSConfig is used for both implicit TLS and STARTTLS. ServerName
	// defaults to Host when unset.
	TLSConfig *tls.Config

	Logger *slog.Logger
}

// Mode resolves TLSAuto against the configured port.
func (c Config) Mode() TLSMode {
	switch c.TLSMode {
	case "", TLSAuto:
		if c.Port == implicitTLSPort {
			return TLSImplicit
		}
		return TLSStartTLS
	default:
		return c.TLSMode
	}
}

func (c Config) withDefaults() Config {
	if c.LocalName == "" {
		c.LocalName = defaultLocalName
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) clientTLSConfig() *tls.Config {
	var cfg *tls.Config
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = c.Host
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// Session is one SMTP connection. It is not safe for concurrent use; each
// workflow opens its own Session and closes it when done.
type Session struct {
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	state     int
	tlsActive bool

	localName string
	timeout   time.Duration
	logger    *slog.Logger

	// broken is set once the transport failed; the session then only
	// accepts Close.
	broken bool
}

// Connect dials host:port, reads the greeting and introduces itself with
// EHLO. Depending on the TLS mode the transport is encrypted from the start
// (port 465) or upgraded with STARTTLS followed by a second EHLO.
//
// All failures are reported as ErrConnection. The returned Session must be
// closed by the caller.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	mode := cfg.Mode()
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Kind: ErrConnection, Command: "dial " + addr, Timeout: isTimeout(err), Err: err}
	}

	s := &Session{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		state:     stateUnconnected,
		localName: cfg.LocalName,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger.With("smtp_server", addr),
	}

	if err := s.handshake(ctx, mode, cfg.clientTLSConfig()); err != nil {
		s.release()
		return nil, err
	}

	s.logger.Debug("SMTP session established", "tls_mode", string(mode), "tls", s.tlsActive)
	return s, nil
}

// handshake runs greeting, EHLO and the optional TLS upgrade.
func (s *Session) handshake(ctx context.Context, mode TLSMode, tlsConfig *tls.Config) error {
	if mode == TLSImplicit {
		if err := s.upgradeTLS(ctx, tlsConfig); err != nil {
			return err
		}
	}

	reply, err := s.read(ctx, ErrConnection, "greeting")
	if err != nil {
		return err
	}
	s.logger.Debug("SMTP greeting received", "reply", reply)
	s.state = stateGreeted

	if _, err := s.command(ctx, ErrConnection, "EHLO", "EHLO "+s.localName); err != nil {
		return err
	}

	if mode != TLSStartTLS {
		return nil
	}

	if _, err := s.command(ctx, ErrConnection, "STARTTLS", "STARTTLS"); err != nil {
		return err
	}
	if err := s.upgradeTLS(ctx, tlsConfig); err != nil {
		return err
	}
	_, err = s.command(ctx, ErrConnection, "EHLO", "EHLO "+s.localName)
	return err
}

// upgradeTLS wraps the current connection in a TLS client and replaces the
// reader and writer in place.
func (s *Session) upgradeTLS(ctx context.Context, cfg *tls.Config) error {
	if err := s.conn.SetDeadline(s.deadline(ctx)); err != nil {
		s.broken = true
		return &Error{Kind: ErrConnection, Command: "TLS handshake", Err: err}
	}

	tlsConn := tls.Client(s.conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.broken = true
		return &Error{Kind: ErrConnection, Command: "TLS handshake", Timeout: isTimeout(err), Err: err}
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	if s.state == stateGreeted {
		s.state = stateTLSUpgraded
	}
	return nil
}

// Close sends QUIT and releases the transport. QUIT failures are ignored.
// Close is safe on a nil, partially established or already closed Session
// and always returns nil.
func (s *Session) Close() error {
	if s == nil || s.conn == nil || s.state == stateClosed {
		return nil
	}

	if !s.broken && s.state >= stateGreeted {
		if _, err := s.command(context.Background(), ErrConnection, "QUIT", "QUIT"); err != nil {
			s.logger.Debug("QUIT failed", "error", err)
		}
	}

	s.release()
	return nil
}

func (s *Session) release() {
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("failed to close SMTP connection", "error", err)
	}
	s.state = stateClosed
}

// TLS reports whether the transport is encrypted.
func (s *Session) TLS() bool {
	return s.tlsActive
}

// command writes one line and reads the reply. label names the step in errors
// and logs so that credential lines never leak.
func (s *Session) command(ctx context.Context, kind error, label, line string) (string, error) {
	if err := s.writeLine(ctx, kind, label, line); err != nil {
		return "", err
	}
	return s.read(ctx, kind, label)
}

// writeLine writes line followed by CRLF and flushes.
func (s *Session) writeLine(ctx context.Context, kind error, label, line string) error {
	return s.writeLines(ctx, kind, label, []string{line})
}

// writeLines buffers every line with its CRLF under a single deadline and
// flushes once.
func (s *Session) writeLines(ctx context.Context, kind error, label string, lines []string) error {
	if s.broken {
		return &Error{Kind: kind, Command: label, Err: errSessionBroken}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: kind, Command: label, Err: err}
	}
	if err := s.conn.SetDeadline(s.deadline(ctx)); err != nil {
		s.broken = true
		return &Error{Kind: kind, Command: label, Err: err}
	}

	for _, line := range lines {
		if _, err := s.writer.WriteString(line); err != nil {
			s.broken = true
			return &Error{Kind: kind, Command: label, Timeout: isTimeout(err), Err: err}
		}
		if _, err := s.writer.WriteString("\r\n"); err != nil {
			s.broken = true
			return &Error{Kind: kind, Command: label, Timeout: isTimeout(err), Err: err}
		}
	}
	if err := s.writer.Flush(); err != nil {
		s.broken = true
		return &Error{Kind: kind, Command: label, Timeout: isTimeout(err), Err: err}
	}
	return nil
}

// read waits for one reply and classifies it by its first byte.
func (s *Session) read(ctx context.Context, kind error, label string) (string, error) {
	if err := s.conn.SetReadDeadline(s.deadline(ctx)); err != nil {
		s.broken = true
		return "", &Error{Kind: kind, Command: label, Err: err}
	}

	reply, err := s.readReply()
	if err != nil {
		s.broken = true
		return reply, &Error{Kind: kind, Command: label, Reply: reply, Timeout: isTimeout(err), Err: err}
	}

	if isFailure(reply) {
		e := &Error{Kind: kind, Command: label, Reply: reply}
		if reply == "" || (reply[0] != '4' && reply[0] != '5') {
			e.Err = errMalformedReply
		}
		return reply, e
	}
	return reply, nil
}

// readReply accumulates bytes until CRLF. Continuation lines ("250-...")
// are consumed and joined with "\n" so that multi-line replies never leave
// stale lines for the next command.
func (s *Session) readReply() (string, error) {
	var lines []string
	for {
		line, err := s.readLine()
		if err != nil {
			return strings.Join(lines, "\n"), err
		}
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)
		if len(line) < 4 || line[3] != '-' {
			return strings.Join(lines, "\n"), nil
		}
	}
}

// readLine reads one line of at most maxReplyLine octets including CRLF.
func (s *Session) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxReplyLine {
			return "", fmt.Errorf("%w: line exceeds %d octets", errMalformedReply, maxReplyLine)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
}

// deadline is now plus the per-command timeout, or the context deadline if
// that comes first.
func (s *Session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
