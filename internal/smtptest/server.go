// Package smtptest provides a scripted SMTP server for exercising clients
// over a real loopback connection.
package smtptest

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	smtptls "github.com/shineum/bermail/internal/tls"
)

// NoReply makes the server stop answering and wait for the client to hang up.
const NoReply = "\x00no-reply"

// waitTimeout bounds Wait so a stuck client fails the test instead of hanging it.
const waitTimeout = 10 * time.Second

// Command is one line received from the client.
type Command struct {
	Line string
	// TLS is set when the line arrived over the encrypted transport.
	TLS bool
}

// Config scripts a Server.
type Config struct {
	// Replies are sent in order: the greeting first, then one per command
	// and one after each message terminator. Multi-line replies use "\r\n"
	// between lines. The connection is closed once the script runs out.
	Replies []string

	// StartTLS upgrades the connection after a 2xx reply to STARTTLS.
	StartTLS bool

	// ImplicitTLS wraps the connection in TLS before the greeting.
	ImplicitTLS bool
}

// Server accepts a single connection and plays its script.
type Server struct {
	t        testing.TB
	config   Config
	listener net.Listener
	cert     *tls.Certificate

	mu         sync.Mutex
	transcript strings.Builder
	commands   []Command
	messages   []string
	tlsActive  bool
	err        error

	done chan struct{}
}

// Start listens on a loopback port and serves one connection in the
// background. The listener is closed when the test ends.
func Start(t testing.TB, cfg Config) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &Server{
		t:        t,
		config:   cfg,
		listener: ln,
		done:     make(chan struct{}),
	}

	if cfg.StartTLS || cfg.ImplicitTLS {
		cert, err := smtptls.GenerateSelfSignedCert()
		if err != nil {
			ln.Close()
			t.Fatalf("failed to generate certificate: %v", err)
		}
		s.cert = cert
	}

	t.Cleanup(func() { ln.Close() })

	go s.serve()
	return s
}

// Host returns the listener IP.
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listener port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// ClientTLSConfig trusts the server certificate. It returns nil for a
// plaintext server.
func (s *Server) ClientTLSConfig() *tls.Config {
	if s.cert == nil {
		return nil
	}
	pool, err := smtptls.CertPool(s.cert)
	if err != nil {
		s.t.Fatalf("failed to build cert pool: %v", err)
	}
	return &tls.Config{RootCAs: pool, ServerName: "localhost", MinVersion: tls.VersionTLS12}
}

// Wait blocks until the connection handler has returned.
func (s *Server) Wait() {
	s.t.Helper()
	select {
	case <-s.done:
	case <-time.After(waitTimeout):
		s.t.Fatal("smtptest: server did not finish in time")
	}
}

// Transcript returns every byte the client sent, as received after any TLS
// upgrade.
func (s *Server) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// Commands returns the command lines received outside of DATA.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// Messages returns the raw content of every DATA phase, without the
// terminating dot line.
func (s *Server) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Sent reports whether a command with the given prefix was received.
func (s *Server) Sent(prefix string) bool {
	for _, c := range s.Commands() {
		if strings.HasPrefix(c.Line, prefix) {
			return true
		}
	}
	return false
}

func (s *Server) serve() {
	defer close(s.done)

	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer func() { conn.Close() }()

	if s.config.ImplicitTLS {
		tlsConn := tls.Server(conn, s.serverTLSConfig())
		if err := tlsConn.Handshake(); err != nil {
			s.setErr(err)
			return
		}
		conn = tlsConn
		s.setTLS()
	}

	reader := bufio.NewReader(conn)
	replies := s.config.Replies

	next := func() (string, bool) {
		if len(replies) == 0 {
			return "", false
		}
		r := replies[0]
		replies = replies[1:]
		return r, true
	}

	// Greeting.
	reply, ok := next()
	if !ok || !s.reply(conn, reader, reply) {
		return
	}

	for {
		line, err := s.readLine(reader)
		if err != nil {
			return
		}
		s.recordCommand(line)

		reply, ok := next()
		if !ok || !s.reply(conn, reader, reply) {
			return
		}

		verb := strings.ToUpper(line)
		switch {
		case verb == "STARTTLS" && s.config.StartTLS && strings.HasPrefix(reply, "2"):
			tlsConn := tls.Server(conn, s.serverTLSConfig())
			if err := tlsConn.Handshake(); err != nil {
				s.setErr(err)
				return
			}
			conn = tlsConn
			reader = bufio.NewReader(conn)
			s.setTLS()

		case verb == "DATA" && strings.HasPrefix(reply, "3"):
			if err := s.readData(reader); err != nil {
				return
			}
			reply, ok := next()
			if !ok || !s.reply(conn, reader, reply) {
				return
			}

		case verb == "QUIT":
			return
		}
	}
}

// reply writes one scripted reply. It returns false when the handler
// should stop.
func (s *Server) reply(conn net.Conn, reader *bufio.Reader, reply string) bool {
	if reply == NoReply {
		// Drain until the client gives up.
		_, _ = io.Copy(io.Discard, reader)
		return false
	}
	if _, err := io.WriteString(conn, reply+"\r\n"); err != nil {
		return false
	}
	return true
}

func (s *Server) readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	s.mu.Lock()
	s.transcript.WriteString(line)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Server) readData(reader *bufio.Reader) error {
	var data strings.Builder
	for {
		line, err := s.readLine(reader)
		if err != nil {
			return err
		}
		if line == "." {
			break
		}
		data.WriteString(line)
		data.WriteString("\r\n")
	}

	s.mu.Lock()
	s.messages = append(s.messages, data.String())
	s.mu.Unlock()
	return nil
}

func (s *Server) recordCommand(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Line: line, TLS: s.tlsActive})
}

// Err returns the TLS handshake error seen by the server, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Server) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Server) setTLS() {
	s.mu.Lock()
	s.tlsActive = true
	s.mu.Unlock()
}

func (s *Server) serverTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*s.cert},
		MinVersion:   tls.VersionTLS12,
	}
}
